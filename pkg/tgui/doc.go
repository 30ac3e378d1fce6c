// Package tgui provides small Telegram text helpers:
//   - Safe HTML composition for ParseMode="HTML" (auto escaping)
//   - Rune-aware truncation for Telegram's message length limits
package tgui
