package telegram

import (
	"context"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/totem/internal/event"
	"github.com/iamwavecut/totem/internal/platform"
)

// Translate normalizes one raw update into the inbound union. The kind is
// decided here, once; downstream code never inspects api types again.
func Translate(u *api.Update) *event.Inbound {
	if u == nil {
		return &event.Inbound{Kind: event.KindUnknown}
	}

	switch {
	case u.CallbackQuery != nil:
		ev := &event.Inbound{
			Kind: event.KindCallback,
			Callback: &event.Callback{
				ID:   u.CallbackQuery.ID,
				Data: u.CallbackQuery.Data,
			},
		}
		if from := u.SentFrom(); from != nil {
			ev.Sender = userFromAPI(from)
		}
		if u.CallbackQuery.Message != nil {
			ev.ChatID = u.CallbackQuery.Message.Chat.ID
		}
		return ev

	case u.ChatMember != nil:
		subject := platform.User{}
		if u.ChatMember.NewChatMember.User != nil {
			subject = userFromAPI(u.ChatMember.NewChatMember.User)
		}
		return &event.Inbound{
			Kind:   event.KindMembership,
			ChatID: u.ChatMember.Chat.ID,
			Sender: userFromAPI(&u.ChatMember.From),
			Membership: &event.Membership{
				Subject: subject,
				From:    statusFromAPI(u.ChatMember.OldChatMember.Status),
				To:      statusFromAPI(u.ChatMember.NewChatMember.Status),
			},
		}

	case u.Message != nil:
		return translateMessage(u.Message)
	}

	return &event.Inbound{Kind: event.KindUnknown}
}

func translateMessage(msg *api.Message) *event.Inbound {
	ev := &event.Inbound{ChatID: msg.Chat.ID}
	if msg.From != nil {
		ev.Sender = userFromAPI(msg.From)
	}

	if len(msg.NewChatMembers) > 0 {
		users := make([]platform.User, 0, len(msg.NewChatMembers))
		for i := range msg.NewChatMembers {
			users = append(users, userFromAPI(&msg.NewChatMembers[i]))
		}
		ev.Kind = event.KindJoin
		ev.Join = &event.Join{MessageID: msg.MessageID, Users: users}
		return ev
	}

	if msg.IsCommand() {
		ev.Kind = event.KindCommand
		ev.Command = &event.Command{
			MessageID: msg.MessageID,
			Name:      msg.Command(),
			Qualifier: commandQualifier(msg),
		}
		return ev
	}

	ev.Kind = event.KindMessage
	ev.Message = &event.Message{
		ID:      msg.MessageID,
		Text:    strings.TrimSpace(msg.Text),
		IsReply: msg.ReplyToMessage != nil,
	}
	return ev
}

// commandQualifier extracts the @mention of "/cmd@bot_name", empty when
// the command is unqualified.
func commandQualifier(msg *api.Message) string {
	withAt := msg.CommandWithAt()
	if _, qualifier, ok := strings.Cut(withAt, "@"); ok {
		return qualifier
	}
	return ""
}

func statusFromAPI(status string) event.Status {
	switch status {
	case "creator", "administrator":
		return event.StatusAdministrator
	case "member":
		return event.StatusMember
	case "restricted":
		return event.StatusRestricted
	case "kicked":
		return event.StatusKicked
	default:
		return event.StatusLeft
	}
}

// GetUpdatesChans runs long polling on its own goroutine and hands updates
// over a channel; a polling failure is terminal and reported on the error
// channel.
func GetUpdatesChans(ctx context.Context, bot *api.BotAPI, config api.UpdateConfig) (api.UpdatesChannel, chan error) {
	ch := make(chan api.Update, bot.Buffer)
	chErr := make(chan error)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			select {
			case <-ctx.Done():
				chErr <- ctx.Err()
				return
			default:
				updates, err := bot.GetUpdates(config)
				if err != nil {
					chErr <- err
					return
				}

				for _, update := range updates {
					if update.UpdateID >= config.Offset {
						config.Offset = update.UpdateID + 1
						select {
						case ch <- update:
						case <-ctx.Done():
							chErr <- ctx.Err()
							return
						}
					}
				}
			}
		}
	}()

	return ch, chErr
}
