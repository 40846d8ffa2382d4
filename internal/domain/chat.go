package domain

type ChatEntry struct {
	SenderDisplayName string
	SenderID          string
	Body              string
}
