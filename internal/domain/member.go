package domain

// Participant is the local participant's identity inside a room, as handed
// out by the publisher join response.
type Participant struct {
	ID        PublisherID `json:"id"`
	PrivateID string      `json:"private_id"`
	Display   string      `json:"display"`
}

// Joined reports whether the publisher join has completed.
func (p Participant) Joined() bool { return p.ID != "" }
