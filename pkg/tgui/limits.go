package tgui

// MaxMessageRunes is Telegram's per-message text size limit.
const MaxMessageRunes = 4096
