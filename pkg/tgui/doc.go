// Package tgui holds small Telegram UI helpers:
//   - callback data in the "scope:action:payload" form
//   - HTML escaping for ParseMode="HTML"
//   - an inline keyboard builder over transport-neutral buttons
package tgui
