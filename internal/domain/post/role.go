package post

// Role is how an actor relates to a post.
type Role int

const (
	RoleNone Role = iota
	RoleOwner
	RoleRecycler
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleRecycler:
		return "recycler"
	}
	return "none"
}

// RoleOf derives the actor's role from the post's references. A recycler
// only has a role once assigned.
func RoleOf(p *Post, actorID string) Role {
	switch {
	case actorID == "":
		return RoleNone
	case actorID == p.OwnerID:
		return RoleOwner
	case p.RecyclerID != "" && actorID == p.RecyclerID:
		return RoleRecycler
	}
	return RoleNone
}

func (r Role) sender() Sender {
	if r == RoleRecycler {
		return SenderRecycler
	}
	return SenderUser
}

// requireParticipant allows the owner and the assigned recycler.
func requireParticipant(p *Post, actorID string, denied error) (Role, error) {
	role := RoleOf(p, actorID)
	if role == RoleNone {
		return role, denied
	}
	return role, nil
}

func requireOwner(p *Post, actorID string) error {
	switch RoleOf(p, actorID) {
	case RoleOwner:
		return nil
	case RoleRecycler:
		return ErrOwnerOnly
	}
	return ErrNotAuthorized
}

func requireRecycler(p *Post, actorID string) error {
	switch RoleOf(p, actorID) {
	case RoleRecycler:
		return nil
	case RoleOwner:
		return ErrRecyclerOnly
	}
	return ErrNotAuthorized
}
