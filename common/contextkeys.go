package common

type ContextKey int

const (
	ContextKeyUser ContextKey = iota
	ContextKeyCurrentCommunity
	ContextKeyCurrentMemberRole
)
