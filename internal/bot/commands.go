package bot

import (
	"context"
	"strconv"
	"strings"

	kit "aquabot/internal/transport"
	"aquabot/internal/transport/telegram/router"
	"aquabot/internal/yclients"
	logx "aquabot/pkg/logx"
	"aquabot/pkg/tgui"
)

type commandInfo struct {
	name string
	desc string
}

func (h *Handlers) start(ctx context.Context, req *router.Request) error {
	h.reply(ctx, req, textStart, &kit.SendOptions{RequestContact: startContactButton})
	return nil
}

func (h *Handlers) help(cmds Commands) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		var list []commandInfo
		if cmds != nil {
			for _, c := range cmds.Commands(cmds.IsAdmin(req.Chat.ChatID, req.FromID)) {
				if c.Hidden {
					continue
				}
				list = append(list, commandInfo{name: c.Name, desc: c.Description})
			}
		}
		h.reply(ctx, req, helpText(list), nil)
		return nil
	}
}

func (h *Handlers) phone(ctx context.Context, req *router.Request) error {
	h.reply(ctx, req, textPhonePrompt, &kit.SendOptions{RequestContact: contactButton})
	return nil
}

// record shows the next active booking from today, with a confirm button
// while attendance is not yet confirmed.
func (h *Handlers) record(ctx context.Context, req *router.Request) error {
	link, ok, err := h.d.Links.LinkOf(ctx, req.FromID)
	if err != nil {
		return err
	}
	if !ok || link.Phone == "" {
		h.reply(ctx, req, textNeedPhoneForRecord, &kit.SendOptions{RequestContact: contactButton})
		return nil
	}
	if link.ClientID == 0 {
		h.reply(ctx, req, textProfileNotLinked, nil)
		return nil
	}

	h.reply(ctx, req, textSearchingRecord, nil)
	list, err := h.d.Records.ListRecords(ctx, yclients.ListQuery{
		CompanyID: h.d.CompanyID,
		ClientID:  link.ClientID,
		StartDate: h.d.Now().In(h.d.Location).Format("2006-01-02"),
		Count:     10,
		Page:      1,
	})
	if err != nil {
		req.Logger.Warn("list records failed", logx.Err(err))
		h.reply(ctx, req, textListRecordsFail, nil)
		return nil
	}

	var next *yclients.Record
	for i := range list {
		if !list[i].Deleted.IsTrue() {
			next = &list[i]
			break
		}
	}
	if next == nil {
		h.reply(ctx, req, textNoActiveRecords, nil)
		return nil
	}

	companyID := next.CompanyID.Int64()
	if companyID == 0 {
		companyID = h.d.CompanyID
	}
	text := recordCard(next, recordLink(next, companyID))
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if !next.Attended(yclients.AttendanceConfirmed) {
		text += "\n\n" + textNeedConfirmHint
		payload := strconv.FormatInt(companyID, 10) + ":" + next.ID.String()
		opt.Inline = tgui.NewInline().Row(tgui.Btn(confirmButton, tgui.Data("rec", "confirm", payload))).Rows()
	}
	h.reply(ctx, req, text, opt)
	return nil
}

func recordLink(r *yclients.Record, companyID int64) string {
	if l := strings.TrimSpace(r.ShortLink.String()); l != "" {
		return l
	}
	if l := strings.TrimSpace(r.Link.String()); l != "" {
		return l
	}
	if r.ID.Int64() == 0 {
		return ""
	}
	return "https://yclients.com/record/" + strconv.FormatInt(companyID, 10) + "/" + r.ID.String()
}

func (h *Handlers) pending(ctx context.Context, req *router.Request) error {
	list, err := h.d.Store.PendingLinks(ctx, h.d.CompanyID, 20)
	if err != nil {
		return err
	}
	total, err := h.d.Store.CountPending(ctx, h.d.CompanyID)
	if err != nil {
		total = len(list)
	}
	h.reply(ctx, req, pendingText(list, total), nil)
	return nil
}

func (h *Handlers) recheck(ctx context.Context, req *router.Request) error {
	if h.d.Recheck() {
		h.reply(ctx, req, "🔄 Перепроверка запущена.", nil)
	} else {
		h.reply(ctx, req, "Перепроверка уже идёт или не настроена.", nil)
	}
	return nil
}
