package httpapi

import (
	"chathub/internal/engine"
	"chathub/internal/identity"
	"chathub/internal/store"
)

type Deps struct {
	Store    store.Store
	Engine   engine.Engine
	Verifier identity.Verifier

	Release string
}
