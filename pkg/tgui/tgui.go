package tgui

import (
	kit "aquabot/internal/transport"

	tele "gopkg.in/telebot.v4"
)

// Inline builds inline keyboard rows.
type Inline struct {
	rows [][]kit.InlineButton
}

func NewInline() *Inline { return &Inline{} }

func (i *Inline) Row(btn ...kit.InlineButton) *Inline {
	i.rows = append(i.rows, btn)
	return i
}

func (i *Inline) Rows() [][]kit.InlineButton { return i.rows }

// Btn is a callback button; build data with Data.
func Btn(text, data string) kit.InlineButton { return kit.InlineButton{Text: text, Data: data} }

func URLBtn(text, url string) kit.InlineButton { return kit.InlineButton{Text: text, URL: url} }

// Markup converts rows to telebot markup; nil for no rows.
func Markup(rows [][]kit.InlineButton) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	tr := make([]tele.Row, 0, len(rows))
	for _, r := range rows {
		btns := make([]tele.Btn, 0, len(r))
		for _, b := range r {
			btns = append(btns, tele.Btn{Text: b.Text, Data: b.Data, URL: b.URL})
		}
		tr = append(tr, rm.Row(btns...))
	}
	rm.Inline(tr...)
	return rm
}

// ContactKeyboard is a one-time reply keyboard with a share-phone button.
func ContactKeyboard(label string) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	rm.Reply(rm.Row(rm.Contact(label)))
	return rm
}

// RemoveKeyboard hides a reply keyboard shown earlier.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}
