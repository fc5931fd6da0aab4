package bot

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"aquabot/internal/confirm"
	"aquabot/internal/storage"
	kit "aquabot/internal/transport"
	"aquabot/internal/transport/telegram/router"
	logx "aquabot/pkg/logx"
)

// parseRecordRef reads "{company}:{record}".
func parseRecordRef(payload string) (companyID, recordID int64, ok bool) {
	c, r, found := strings.Cut(payload, ":")
	if !found {
		return 0, 0, false
	}
	companyID, err1 := strconv.ParseInt(c, 10, 64)
	recordID, err2 := strconv.ParseInt(r, 10, 64)
	if err1 != nil || err2 != nil || companyID <= 0 || recordID <= 0 {
		return 0, 0, false
	}
	return companyID, recordID, true
}

// confirmRecord drives the confirm button. Progress messages follow the
// coordinator's stages; the button is removed once the outcome is known.
func (h *Handlers) confirmRecord(ctx context.Context, req *router.Request) error {
	companyID, recordID, ok := parseRecordRef(req.Payload)
	if !ok {
		return req.Answer(ctx, kit.CallbackAnswer{Text: textBadButton})
	}
	// Stop the client spinner before the slow platform calls.
	_ = req.Answer(ctx, kit.CallbackAnswer{})

	log := req.Logger.With(logx.Int64("company_id", companyID), logx.Int64("record_id", recordID))
	started := h.d.Now()
	var last confirm.Stage
	res, err := h.d.Confirm.Confirm(ctx, confirm.Request{
		CompanyID: companyID,
		RecordID:  recordID,
		OnStage: func(s confirm.Stage) {
			last = s
			switch s {
			case confirm.StageRead:
				h.reply(ctx, req, textChecking, nil)
			case confirm.StageWriteJSON:
				h.reply(ctx, req, textConfirming, nil)
			}
		},
	})
	h.audit(ctx, req, companyID, recordID, started, res, last, err)

	if err == nil {
		h.clearMarkup(ctx, req, log)
		if res.AlreadyConfirmed {
			h.reply(ctx, req, textAlreadyConfirmed, nil)
		} else {
			h.reply(ctx, req, textConfirmOK, nil)
		}
		return nil
	}

	var f *confirm.Failure
	if !errors.As(err, &f) {
		h.reply(ctx, req, textConfirmError(err), nil)
		return err
	}
	switch {
	case errors.Is(f.Err, confirm.ErrBusy):
		h.reply(ctx, req, textBusy, nil)
	case f.Timeout():
		h.reply(ctx, req, textTimeout, nil)
	case f.Stage == confirm.StageRead:
		h.reply(ctx, req, textGetRecordFail, nil)
	case f.Stage == confirm.StageWriteJSON || f.Stage == confirm.StageWriteForm:
		h.clearMarkup(ctx, req, log)
		h.alert(ctx, req, textUpdateFailAlert)
		h.reply(ctx, req, textUpdateFailMsg, nil)
		h.notifyAdmin(ctx, confirmFailedAdminText(companyID, recordID, req.FromID, f))
	default:
		h.reply(ctx, req, textConfirmError(f), nil)
	}
	return nil
}

func (h *Handlers) clearMarkup(ctx context.Context, req *router.Request, log logx.Logger) {
	if err := req.Adapter.ClearMarkup(ctx, req.Message()); err != nil {
		log.Debug("clear markup failed", logx.Err(err))
	}
}

// alert shows a popup. The callback was already answered, so this goes
// straight to the adapter; Telegram ignores a late answer.
func (h *Handlers) alert(ctx context.Context, req *router.Request, text string) {
	if req.Callback == nil {
		return
	}
	_ = req.Adapter.AnswerCallback(ctx, req.Callback.ID, kit.CallbackAnswer{Text: text, Alert: true})
}

func (h *Handlers) notifyAdmin(ctx context.Context, text string) {
	if h.d.Notify == nil || h.d.AdminChat.ChatID == 0 {
		return
	}
	if err := h.d.Notify.Notify(ctx, kit.Notification{
		Channel:  "admin",
		Priority: 6,
		Target:   h.d.AdminChat,
		Text:     text,
		Options:  &kit.SendOptions{DisablePreview: true},
	}); err != nil {
		h.log.Warn("admin notify failed", logx.Err(err))
	}
}

type auditMeta struct {
	Stage     confirm.Stage   `json:"stage,omitempty"`
	Already   bool            `json:"already_confirmed,omitempty"`
	Verified  bool            `json:"verified,omitempty"`
	APIErrors json.RawMessage `json:"api_errors,omitempty"`
}

func (h *Handlers) audit(ctx context.Context, req *router.Request, companyID, recordID int64, started time.Time, res confirm.Result, last confirm.Stage, err error) {
	if h.d.Store == nil {
		return
	}
	meta := auditMeta{Stage: last, Already: res.AlreadyConfirmed, Verified: res.Verified != nil}
	e := storage.AuditEntry{
		At:      h.d.Now(),
		ActorID: req.FromID,
		ChatID:  req.Chat.ChatID,
		Action:  "record.confirm",
		Target:  strconv.FormatInt(companyID, 10) + ":" + strconv.FormatInt(recordID, 10),
		OK:      err == nil,
		TookMS:  h.d.Now().Sub(started).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
		var f *confirm.Failure
		if errors.As(err, &f) {
			meta.Stage = f.Stage
			meta.APIErrors = f.Errors
		}
	}
	if b, merr := json.Marshal(meta); merr == nil {
		e.MetaJSON = string(b)
	}
	if aerr := h.d.Store.AppendAudit(ctx, e); aerr != nil {
		h.log.Warn("audit append failed", logx.Err(aerr))
	}
}
