package middleware

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// RecoverFromPanic вызывается через defer в обработчике апдейта или задачи.
// fields попадают в лог рядом со стеком: update_id, user_id, job_id.
func RecoverFromPanic(fields log.Fields) {
	r := recover()
	if r == nil {
		return
	}
	entry := log.WithFields(fields).WithFields(log.Fields{
		"component": "panic_recovery",
		"panic":     fmt.Sprintf("%v", r),
		"stack":     string(debug.Stack()),
	})
	entry.Error("ПАНИКА в обработчике, восстановлено")
}

// UpdateFields собирает поля лога для апдейта Telegram.
func UpdateFields(updateID int, userID, chatID int64) log.Fields {
	f := log.Fields{"update_id": updateID}
	if userID != 0 {
		f["user_id"] = userID
	}
	if chatID != 0 {
		f["chat_id"] = chatID
	}
	return f
}
