package platform

import (
	"crypto/rand"

	"github.com/google/uuid"
)

const (
	nameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	nameLength   = 10

	// ClusterPrefix starts every generated cluster name.
	ClusterPrefix = "ccm_"
)

// NewExecutionID identifies a single cluster manager invocation in logs.
func NewExecutionID() string {
	return uuid.New().String()
}

// NewClusterName returns a fresh cluster name such as ccm_k3x9a0pq2m.
func NewClusterName() string {
	return NewName(ClusterPrefix)
}

// NewName appends 10 random lowercase alphanumerics to prefix.
func NewName(prefix string) string {
	b := make([]byte, nameLength)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = nameAlphabet[b[i]%byte(len(nameAlphabet))]
	}
	return prefix + string(b)
}
