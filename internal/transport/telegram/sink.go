// Package telegram delivers alert notifications to a Telegram chat. It is
// the remote-caregiver channel behind the notification presenter.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"alertkit/internal/alert"
	"alertkit/internal/presenter"
	logx "alertkit/pkg/logx"
	"alertkit/pkg/tgui"
)

type Config struct {
	Token      string
	ChatID     int64
	RatePerSec int           // Telegram API budget for alert storms
	Timeout    time.Duration // per-send HTTP timeout
}

// MaxBodyRunes caps the alert body so the whole message, with header and
// footer, stays under Telegram's limit.
const MaxBodyRunes = tgui.MaxMessageRunes - 512

// Sink implements presenter.NotificationSink on top of a send-only bot.
// Delivered messages are remembered per alert identifier so retraction and
// acknowledgment can delete them from the chat.
type Sink struct {
	cfg     Config
	bot     *tele.Bot
	limiter *rate.Limiter
	log     logx.Logger

	mu        sync.Mutex
	delivered map[string][]tele.StoredMessage
}

var _ presenter.NotificationSink = (*Sink)(nil)

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: cfg.Timeout},
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Sink{
		cfg:       cfg,
		bot:       b,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:       log,
		delivered: map[string][]tele.StoredMessage{},
	}, nil
}

func (s *Sink) Deliver(ctx context.Context, n presenter.Notification) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	opts := &tele.SendOptions{
		ParseMode: tele.ModeHTML,
		// Desensitized deliveries still land in the chat, just without a
		// push sound.
		DisableNotification: n.Sound.Silent,
	}
	msg, err := s.bot.Send(tele.ChatID(s.cfg.ChatID), formatNotification(n), opts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.delivered[n.ID] = append(s.delivered[n.ID], tele.StoredMessage{
		MessageID: strconv.Itoa(msg.ID),
		ChatID:    s.cfg.ChatID,
	})
	s.mu.Unlock()

	s.log.Debug("alert notification sent", logx.String("alert", n.ID), logx.Bool("silent", n.Sound.Silent))
	return nil
}

func (s *Sink) RemoveDelivered(id string) {
	s.mu.Lock()
	msgs := s.delivered[id]
	delete(s.delivered, id)
	s.mu.Unlock()

	for _, m := range msgs {
		if err := s.bot.Delete(m); err != nil {
			s.log.Debug("could not delete delivered notification",
				logx.String("alert", id), logx.Err(err))
		}
	}
}

// formatNotification renders the alert as a Telegram HTML message. Title
// and body come straight from the issuing source, so both are escaped; the
// body is truncated to keep the whole message under Telegram's size limit.
func formatNotification(n presenter.Notification) string {
	header := tgui.Raw(levelPrefix(n.Level)) + tgui.B(n.Title)
	footer := tgui.JoinH(" · ",
		tgui.Code(n.ID),
		tgui.Esc(n.Timestamp.Format(time.RFC3339)))

	body := tgui.Esc(tgui.TruncRunes(n.Body, MaxBodyRunes))
	return tgui.JoinH("\n\n", header, body, footer).String()
}

func levelPrefix(level alert.InterruptionLevel) string {
	switch level {
	case alert.LevelCritical:
		return "🚨 "
	case alert.LevelTimeSensitive:
		return "⚠️ "
	default:
		return "ℹ️ "
	}
}
