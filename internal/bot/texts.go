package bot

import (
	"fmt"
	"strings"

	"aquabot/internal/storage"
	"aquabot/internal/yclients"
	"aquabot/pkg/tgui"
)

const (
	textStart = "Здравствуйте! Это бот автомойки.\n\n" +
		"Нажмите кнопку ниже, чтобы поделиться номером телефона. " +
		"По нему мы найдём вас в системе записи и будем присылать уведомления о ваших записях."
	textPhonePrompt        = "Чтобы привязать профиль, отправьте номер телефона кнопкой ниже."
	textNeedPhoneForRecord = "Сначала отправьте номер телефона, чтобы я нашёл ваши записи."
	textProfileNotLinked   = "Ваш номер пока не привязан к профилю клиента. Администратор проверит его в ближайшее время."
	textSearchingRecord    = "🔎 Ищу вашу ближайшую запись…"
	textListRecordsFail    = "⚠️ Не удалось получить список записей. Попробуйте позже."
	textNoActiveRecords    = "У вас нет активных записей."
	textNeedConfirmHint    = "Пожалуйста, подтвердите запись кнопкой ниже."
	textCantParsePhone     = "Не удалось распознать номер телефона. Попробуйте ещё раз."
	textContactFlowError   = "⚠️ Не получилось сохранить номер. Мы уже разбираемся, попробуйте позже."

	textChecking         = "⏳ Проверяю запись…"
	textGetRecordFail    = "⚠️ Не удалось получить запись. Попробуйте позже."
	textAlreadyConfirmed = "✅ Запись уже подтверждена."
	textConfirming       = "⏳ Подтверждаю запись…"
	textUpdateFailAlert  = "Не удалось подтвердить запись"
	textUpdateFailMsg    = "❌ Не удалось подтвердить запись. Администратор свяжется с вами."
	textConfirmOK        = "✅ Запись подтверждена. Ждём вас!"
	textTimeout          = "⌛ Сервис записи не ответил вовремя. Попробуйте ещё раз чуть позже."
	textBadButton        = "Кнопка устарела"
	textBusy             = "⏳ Запись уже подтверждается, подождите немного."

	contactButton      = "📱 Отправить номер телефона"
	startContactButton = "Отправить номер телефона"
	confirmButton      = "✅ Подтвердить запись"
)

func textPhoneLinked(p string) string {
	return fmt.Sprintf("✅ Номер %s привязан. Теперь вы будете получать уведомления о записях.", p)
}

func textPhonePending(p string) string {
	return fmt.Sprintf("Номер %s сохранён. Мы не нашли его в системе записи, администратор проверит и привяжет профиль.", p)
}

func textConfirmError(err error) string {
	return "🚨 Ошибка подтверждения: " + err.Error()
}

// recordCard renders the /record reply.
func recordCard(rec *yclients.Record, link string) string {
	d := rec.Data()
	date, clock := d.DateTime()
	parts := []tgui.H{
		tgui.B("📋 Ваша ближайшая запись"),
		"📅 Дата: " + tgui.B(date),
		"🕒 Время: " + tgui.B(clock),
		"🧼 Услуги: " + tgui.Esc(d.ServicesText()),
	}
	if staff := d.StaffName(); staff != "" {
		parts = append(parts, "👤 Мастер: "+tgui.Esc(staff))
	}
	if link != "" {
		parts = append(parts, "🔗 "+tgui.Esc(link))
	}
	return tgui.Lines(parts...).String()
}

func helpText(cmds []commandInfo) string {
	var b strings.Builder
	b.WriteString("Доступные команды:\n")
	for _, c := range cmds {
		b.WriteString("/" + c.name)
		if c.desc != "" {
			b.WriteString(" - " + c.desc)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nУведомления о записях приходят автоматически после привязки номера.")
	return b.String()
}

func pendingText(links []storage.Link, total int) string {
	if len(links) == 0 {
		return "Ожидающих привязки нет."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Ожидают привязки: %d\n", total)
	for _, l := range links {
		fmt.Fprintf(&b, "\n• %s tg:%d с %s", l.Phone, l.TelegramUserID, l.CreatedAt.Format("02.01 15:04"))
	}
	return b.String()
}

func confirmFailedAdminText(companyID, recordID, userID int64, err error) string {
	return fmt.Sprintf("🚨 Клиент не смог подтвердить запись\nКомпания: %d\nЗапись: %d\nTelegram: %d\nОшибка: %v",
		companyID, recordID, userID, err)
}
