package model

// Actor - аутентифицированный пользователь, от имени которого выполняется операция
type Actor struct {
	UserID  string
	IsAdmin bool
}

// CanManage - владелец слота или администратор
func (a Actor) CanManage(slot *Slot) bool {
	return a.IsAdmin || slot.OwnerID == a.UserID
}
