package redis

import "fmt"

const ns = "gatecheck:v1"

func KeyEventSummary(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:summary", ns, eventID)
}

func KeyEventAttendance(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:attendance", ns, eventID)
}

func KeyIdemRegister(eventID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:registrations:%d:%s", ns, eventID, idemKey)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelCheckins() string {
	return ns + ":checkins"
}
