package auth

// User is the identity that scopes the mutation queue. The zero value is the
// unauthenticated user, which still gets a queue of its own.
type User struct {
	UID string
}

// Unauthenticated is the identity used before sign-in.
var Unauthenticated = User{}

func (u User) IsAuthenticated() bool {
	return u.UID != ""
}

// QueueKey is the persistence key for the user's mutation queue.
func (u User) QueueKey() string {
	if !u.IsAuthenticated() {
		return "unauthenticated"
	}
	return u.UID
}

func (u User) Equal(other User) bool {
	return u.UID == other.UID
}
