package telegram

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/totem/internal/platform"
)

// Client adapts the Bot API to the platform capability contract. The bot
// connection cannot enumerate plain, banned or kicked participants, so
// those filters report platform.ErrUnsupported.
type Client struct {
	bot  *api.BotAPI
	self platform.User
}

func New(bot *api.BotAPI) *Client {
	return &Client{
		bot: bot,
		self: platform.User{
			ID:        bot.Self.ID,
			Username:  bot.Self.UserName,
			FirstName: bot.Self.FirstName,
			IsBot:     true,
		},
	}
}

func (c *Client) Self() platform.User {
	return c.self
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		msg := api.NewMessage(chatID, text)
		if _, err := c.bot.Send(msg); err != nil {
			return errors.WithMessage(err, "cant send message")
		}
		return nil
	}
}

func (c *Client) SendReply(ctx context.Context, chatID int64, replyTo int, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		msg := api.NewMessage(chatID, text)
		msg.ReplyParameters.MessageID = replyTo
		msg.ReplyParameters.ChatID = chatID
		msg.ReplyParameters.AllowSendingWithoutReply = true
		if _, err := c.bot.Send(msg); err != nil {
			return errors.WithMessage(err, "cant send reply")
		}
		return nil
	}
}

func (c *Client) SendPrompt(ctx context.Context, chatID int64, text string, buttons []platform.Button) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		row := make([]api.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			row = append(row, api.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		msg := api.NewMessage(chatID, text)
		msg.ReplyMarkup = api.NewInlineKeyboardMarkup(row)
		if _, err := c.bot.Send(msg); err != nil {
			return errors.WithMessage(err, "cant send prompt")
		}
		return nil
	}
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := c.bot.Request(api.NewCallback(callbackID, text)); err != nil {
			return errors.WithMessage(err, "cant answer callback")
		}
		return nil
	}
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := c.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
			return errors.WithMessage(err, "cant delete message")
		}
		return nil
	}
}

func (c *Client) RestrictUser(ctx context.Context, chatID, userID int64, rights platform.RestrictedRights, until time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		var untilUnix int64
		if !until.IsZero() {
			untilUnix = until.Unix()
		}
		if _, err := c.bot.Request(api.RestrictChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
			UntilDate:   untilUnix,
			Permissions: permissionsFromRevoked(rights),
		}); err != nil {
			return errors.WithMessage(err, "cant restrict")
		}
		return nil
	}
}

// permissionsFromRevoked turns the revoked-capability flags into the
// granted-permission form the Bot API expects.
func permissionsFromRevoked(rights platform.RestrictedRights) *api.ChatPermissions {
	return &api.ChatPermissions{
		CanSendMessages:       !rights.SendMessages,
		CanSendAudios:         !rights.SendAudios,
		CanSendDocuments:      !rights.SendDocs,
		CanSendPhotos:         !rights.SendPhotos,
		CanSendVideos:         !rights.SendVideos,
		CanSendVideoNotes:     !rights.SendRoundvideos,
		CanSendVoiceNotes:     !rights.SendVoices,
		CanSendPolls:          !rights.SendPolls,
		CanSendOtherMessages:  !rights.SendStickers && !rights.SendGifs && !rights.SendGames && !rights.SendInline,
		CanAddWebPagePreviews: !rights.EmbedLinks,
		CanChangeInfo:         !rights.ChangeInfo,
		CanInviteUsers:        !rights.InviteUsers,
		CanPinMessages:        !rights.PinMessages,
		CanManageTopics:       !rights.ManageTopics,
	}
}

func (c *Client) UserFullInfo(ctx context.Context, chatID, userID int64) (*platform.FullUser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		member, err := c.bot.GetChatMember(api.GetChatMemberConfig{
			ChatConfigWithUser: api.ChatConfigWithUser{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
		})
		if err != nil {
			return nil, errors.WithMessage(err, "cant get chat member")
		}
		if member.User == nil {
			return nil, errors.New("chat member has no user")
		}
		return &platform.FullUser{User: userFromAPI(member.User)}, nil
	}
}

func (c *Client) Participants(ctx context.Context, chatID int64, filter platform.ParticipantFilter, offset, limit int) ([]platform.Participant, error) {
	if filter != platform.FilterAdmins {
		return nil, platform.ErrUnsupported
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	admins, err := c.bot.GetChatAdministrators(api.ChatAdministratorsConfig{
		ChatConfig: api.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, errors.WithMessage(err, "cant get chat administrators")
	}

	// The Bot API returns the full list in one response; pagination is
	// emulated so the caller's page loop stays uniform across filters.
	if offset >= len(admins) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(admins) {
		end = len(admins)
	}

	page := make([]platform.Participant, 0, end-offset)
	for _, member := range admins[offset:end] {
		if member.User == nil {
			continue
		}
		page = append(page, platform.Participant{
			User:        userFromAPI(member.User),
			IsCreator:   member.Status == "creator",
			AdminRights: adminRightsFromAPI(&member),
		})
	}
	return page, nil
}

// AdminLog is MTProto-only (channels.getAdminLog); the Bot API has no
// counterpart, same as the non-admin participant filters.
func (c *Client) AdminLog(ctx context.Context, chatID int64, limit int, kinds []string) ([]platform.AdminLogEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, platform.ErrUnsupported
	}
}

func userFromAPI(user *api.User) platform.User {
	return platform.User{
		ID:        user.ID,
		Username:  user.UserName,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		IsBot:     user.IsBot,
		IsPremium: user.IsPremium,
	}
}

func adminRightsFromAPI(member *api.ChatMember) *platform.AdminRights {
	return &platform.AdminRights{
		ChangeInfo:     member.CanChangeInfo,
		PostMessages:   member.CanPostMessages,
		EditMessages:   member.CanEditMessages,
		DeleteMessages: member.CanDeleteMessages,
		BanUsers:       member.CanRestrictMembers,
		InviteUsers:    member.CanInviteUsers,
		PinMessages:    member.CanPinMessages,
		AddAdmins:      member.CanPromoteMembers,
		Anonymous:      member.IsAnonymous,
		ManageCall:     member.CanManageVideoChats,
		Other:          member.CanManageChat,
		ManageTopics:   member.CanManageTopics,
	}
}
