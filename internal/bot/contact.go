package bot

import (
	"context"
	"errors"

	"aquabot/internal/links"
	kit "aquabot/internal/transport"
	"aquabot/internal/transport/telegram/router"
	logx "aquabot/pkg/logx"
)

func (h *Handlers) contact(ctx context.Context, req *router.Request) error {
	if req.Contact == nil {
		return nil
	}
	res, err := h.d.Links.Contact(ctx, links.Contact{
		UserID: req.FromID,
		ChatID: req.Chat.ChatID,
		Phone:  req.Contact.Phone,
	})
	switch {
	case errors.Is(err, links.ErrBadPhone):
		h.reply(ctx, req, textCantParsePhone, nil)
		return nil
	case err != nil:
		req.Logger.Error("contact flow failed", logx.Err(err))
		h.reply(ctx, req, textContactFlowError, nil)
		h.d.Links.ReportContactError(ctx, req.FromID, err)
		return nil
	case res.Linked:
		h.reply(ctx, req, textPhoneLinked(res.Phone), &kit.SendOptions{RemoveKeyboard: true})
	default:
		h.reply(ctx, req, textPhonePending(res.Phone), &kit.SendOptions{RemoveKeyboard: true})
	}
	return nil
}
