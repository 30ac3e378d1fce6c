package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"alertkit/internal/alert"
	logx "alertkit/pkg/logx"
	"alertkit/pkg/tgui"
)

// Controller is the slice of the alert engine the chat commands drive.
type Controller interface {
	MuteAlerts(duration time.Duration)
	UnmuteAlerts()
	MuteStatus() (end time.Time, active bool)
}

// ListenCommands registers the operator commands and runs the bot's update
// loop until ctx is done. defaultMute is the window opened by a bare /mute.
//
// Only the configured chat is served; everything else is dropped before the
// handler runs.
func (s *Sink) ListenCommands(ctx context.Context, ctrl Controller, defaultMute time.Duration) {
	s.bot.Use(s.restrictToChat)

	s.bot.Handle("/mute", func(c tele.Context) error {
		d := defaultMute
		if payload := strings.TrimSpace(c.Message().Payload); payload != "" {
			parsed, err := time.ParseDuration(payload)
			if err != nil || parsed <= 0 {
				return c.Send(muteUsage(), &tele.SendOptions{ParseMode: tele.ModeHTML})
			}
			d = parsed
		}
		ctrl.MuteAlerts(d)
		return c.Send(fmt.Sprintf("Alerts muted for %s. They still arrive, just silently.", d))
	})

	s.bot.Handle("/unmute", func(c tele.Context) error {
		ctrl.UnmuteAlerts()
		return c.Send("Alerts unmuted.")
	})

	s.bot.Handle("/status", func(c tele.Context) error {
		if end, active := ctrl.MuteStatus(); active {
			return c.Send(fmt.Sprintf("Muted until %s.", end.Format(time.RFC3339)))
		}
		return c.Send("Not muted.")
	})

	go func() {
		<-ctx.Done()
		s.bot.Stop()
	}()
	s.log.Info("telegram command loop started")
	s.bot.Start()
}

func (s *Sink) restrictToChat(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Chat() == nil {
			return nil
		}
		if c.Chat().ID != s.cfg.ChatID {
			s.log.Debug("ignoring command from foreign chat", logx.Int64("chat", c.Chat().ID))
			return nil
		}
		return next(c)
	}
}

func muteUsage() string {
	opts := make([]tgui.H, 0, len(alert.AllowedMuteDurations))
	for _, d := range alert.AllowedMuteDurations {
		opts = append(opts, tgui.Code(d.String()))
	}
	return tgui.JoinH(" ",
		tgui.Esc("Usage: /mute [duration], e.g."),
		tgui.JoinH(", ", opts...)).String()
}
