package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/shopspring/decimal"

	"solana-threshold-trader/internal/domain"
)

// ErrMissingChatID is returned when Telegram is configured without a chat.
var ErrMissingChatID = errors.New("telegram chat id is required")

// messageSender is the subset of *bot.Bot used to deliver messages.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (any, error)
}

// botSender adapts *bot.Bot to messageSender.
type botSender struct {
	b *bot.Bot
}

func (s botSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (any, error) {
	return s.b.SendMessage(ctx, params)
}

// Telegram posts trade announcements to a single chat.
type Telegram struct {
	sender   messageSender
	chatID   int64
	location *time.Location
}

var _ Notifier = (*Telegram)(nil)

// NewTelegram creates a Telegram notifier for token and chatID.
// The token is not validated against the API until the first message.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if chatID == 0 {
		return nil, ErrMissingChatID
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{sender: botSender{b: b}, chatID: chatID, location: time.UTC}, nil
}

// TradeExecuted sends a one-message summary of t.
func (n *Telegram) TradeExecuted(ctx context.Context, t domain.TradeRecord) error {
	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   FormatTrade(t, n.location),
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// FormatTrade renders t as plain text. SOL amounts are shown in whole SOL.
func FormatTrade(t domain.TradeRecord, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	at := time.UnixMilli(t.ExecutedAt).In(loc).Format("2006-01-02 15:04:05 MST")

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", t.Side, at)
	switch t.Side {
	case domain.SideBuy:
		fmt.Fprintf(&b, "spent %s SOL for %d units of %s\n", sol(t.InAmount), t.OutAmount, t.OutputMint)
	default:
		fmt.Fprintf(&b, "sold %d units of %s for %s SOL\n", t.InAmount, t.InputMint, sol(t.OutAmount))
	}
	fmt.Fprintf(&b, "price %s lamports/token\n", t.Price.Round(2).String())
	fmt.Fprintf(&b, "tx %s", t.Signature)
	return b.String()
}

func sol(lamports uint64) string {
	return decimal.NewFromInt(int64(lamports/domain.LamportsPerSOL)).
		Add(decimal.New(int64(lamports%domain.LamportsPerSOL), -9)).
		String()
}
