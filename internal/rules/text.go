package rules

import (
	"strings"

	"aquabot/internal/record"
)

const unknownClient = "не указан"

type lines []string

func (l *lines) add(s string) { *l = append(*l, s) }

// addIf appends prefix+v only for a non-empty v.
func (l *lines) addIf(prefix, v string) {
	if strings.TrimSpace(v) != "" {
		*l = append(*l, prefix+strings.TrimSpace(v))
	}
}

func (l lines) String() string { return strings.Join(l, "\n") }

func dataOf(ev record.Event) *record.Data {
	if ev.Data == nil {
		return &record.Data{}
	}
	return ev.Data
}

func recordIDText(ev record.Event) string {
	if id := ev.RecordID(); id != 0 {
		return record.ID(id).String()
	}
	return record.Dash
}

func clientName(d *record.Data) string { return record.Or(d.ClientName(), unknownClient) }

func servicesLine(d *record.Data) string {
	t := d.ServiceTitles()
	if len(t) == 0 {
		return ""
	}
	return strings.Join(t, ", ")
}

// recordBlock is the common header shared by most alerts.
func recordBlock(l *lines, ev record.Event, withPhone bool) {
	d := dataOf(ev)
	date, clock := d.DateTime()
	l.add("🧾 Record ID: " + recordIDText(ev))
	l.add("👤 Клиент: " + clientName(d))
	if withPhone {
		l.addIf("📞 Телефон: ", d.Phone())
	}
	l.add("📅 Дата: " + date)
	l.add("🕒 Время: " + clock)
}

func missingPhoneText(ev record.Event) string {
	d := dataOf(ev)
	var l lines
	l.add("⚠️ Запись без телефона")
	recordBlock(&l, ev, false)
	l.add("")
	l.addIf("🧑‍💼 Мастер: ", d.StaffName())
	l.addIf("🧼 Услуги: ", servicesLine(d))
	l.addIf("📝 Комментарий: ", d.Comment.String())
	l.add("")
	l.addIf("🔗 ", d.ShortLink.String())
	admin := "нет"
	if d.CreatedByAdmin() {
		admin = "да"
	}
	l.add("👨‍💻 Создана администратором: " + admin)
	l.add("")
	l.add("👉 Нужно добавить клиента и заполнить номер телефона.")
	return l.String()
}

func phoneResolvedText(ev record.Event) string {
	d := dataOf(ev)
	var l lines
	l.add("✅ Телефон добавлен")
	l.add("")
	recordBlock(&l, ev, true)
	l.add("")
	l.addIf("🧑‍💼 Мастер: ", d.StaffName())
	l.addIf("🧼 Услуги: ", servicesLine(d))
	l.addIf("📝 Комментарий: ", d.Comment.String())
	l.addIf("🔗 ", d.ShortLink.String())
	l.add("")
	l.add("🎯 Статус: инцидент закрыт.")
	return l.String()
}

func notConfirmedText(ev record.Event) string {
	d := dataOf(ev)
	var l lines
	l.add("🟡 Запись не подтверждена")
	recordBlock(&l, ev, false)
	l.addIf("🧼 Услуги: ", servicesLine(d))
	l.addIf("🔗 ", d.ShortLink.String())
	l.add("")
	l.add("👉 Действие: подтвердить запись (или связаться с клиентом).")
	return l.String()
}

func canceledText(ev record.Event) string {
	d := dataOf(ev)
	var l lines
	l.add("🔴 Запись отменена")
	recordBlock(&l, ev, true)
	l.addIf("🧼 Услуги: ", servicesLine(d))
	l.addIf("🔗 ", d.ShortLink.String())
	l.add("")
	l.add("👉 Действие: освободился слот — предложить перенос/перезапись.")
	return l.String()
}

func noShowText(ev record.Event) string {
	d := dataOf(ev)
	var l lines
	l.add("🚫 Неявка по записи")
	recordBlock(&l, ev, true)
	l.addIf("🧼 Услуги: ", servicesLine(d))
	l.addIf("🔗 ", d.ShortLink.String())
	l.add("")
	l.add("🧠 Маркер: visit_attendance=" + d.VisitAttendance.Display() + " / attendance=" + d.Attendance.Display())
	l.add("👉 Действие: реактивация клиента / предложение перезаписи.")
	return l.String()
}

func notLinkedText(ev record.Event, phone string) string {
	d := dataOf(ev)
	date, clock := d.DateTime()
	company := record.Dash
	if ev.CompanyID != 0 {
		company = ev.CompanyID.String()
	}
	var l lines
	l.add("🔔 Клиент не привязан к Telegram")
	l.add("🏢 Компания: " + company)
	l.add("📞 Телефон: " + record.MaskPhone(phone))
	l.add("👤 Клиент: " + clientName(d))
	l.add("📅 Дата: " + date)
	l.add("🕒 Время: " + clock)
	l.addIf("🧼 Услуги: ", servicesLine(d))
	l.addIf("🔗 ", d.ShortLink.String())
	l.add("")
	l.add("👉 Действие: попросить клиента написать боту /start и пройти привязку.")
	return l.String()
}
