package clientnotify

import (
	"aquabot/internal/record"
	"aquabot/pkg/tgui"
)

// Footer holds the static venue details appended to the creation message.
type Footer struct {
	Entrance   string
	YandexMaps string
	Gis        string
}

func (f Footer) withDefaults() Footer {
	if f.Entrance == "" {
		f.Entrance = "справа от главных ворот"
	}
	if f.YandexMaps == "" {
		f.YandexMaps = "https://yandex.ru/maps/-/CDXGBROx"
	}
	if f.Gis == "" {
		f.Gis = "https://go.2gis.com/wgazr"
	}
	return f
}

const ConfirmButtonText = "✅ Подтвердить запись"

func footer(f Footer, recordLink, reviewLink string) []tgui.H {
	var out []tgui.H
	if recordLink != "" {
		out = append(out, "🤓 Запись можно посмотреть здесь: "+tgui.Esc(recordLink))
	}
	out = append(out,
		"🚪 Вход: "+tgui.Esc(f.Entrance),
		"",
		"😊 Если вам понравилось, пожалуйста оставьте отзыв",
	)
	if reviewLink != "" {
		out = append(out, "⭐ Отзыв: "+tgui.Esc(reviewLink))
	}
	out = append(out,
		"Яндекс.Карты: "+tgui.Esc(f.YandexMaps),
		"2Гис: "+tgui.Esc(f.Gis),
	)
	return out
}

func createText(d *record.Data, f Footer, recordLink, reviewLink string) string {
	date, clock := d.DateTime()
	head := tgui.H("Здравствуйте, вы были записаны через администратора на услугу ") +
		tgui.B(d.ServicesText()) + " на " + tgui.B(date) + " в " + tgui.B(clock) + "."
	parts := append([]tgui.H{head, "Все верно?", ""}, footer(f, recordLink, reviewLink)...)
	return tgui.Lines(parts...).String()
}

// statusText renders the confirmed, changed and canceled messages.
func statusText(title string, d *record.Data, recordLink string) string {
	date, clock := d.DateTime()
	parts := []tgui.H{
		tgui.H(title),
		"🧼 Услуга: " + tgui.B(d.ServicesText()),
		"📅 Дата: " + tgui.B(date),
		"🕒 Время: " + tgui.B(clock),
	}
	if recordLink != "" {
		parts = append(parts, "", "🔗 Детали: "+tgui.Esc(recordLink))
	}
	return tgui.Lines(parts...).String()
}

const (
	titleConfirmed = "✅ Ваша запись подтверждена"
	titleChanged   = "✏️ Ваша запись изменена"
	titleCanceled  = "❌ Ваша запись отменена"
)
