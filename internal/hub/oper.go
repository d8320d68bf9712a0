package hub

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/corvidnet/fedircd/internal/registry"
	"github.com/corvidnet/fedircd/internal/store"
)

// SeedAdmins installs the OPER credential table loaded from the
// persistence file's A; lines, hashing each plaintext password with
// bcrypt so it is never compared or stored in the clear after startup.
func (h *Hub) SeedAdmins(creds []store.AdminCredential) error {
	h.admins = make(map[string][]byte, len(creds))
	for _, c := range creds {
		hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		h.admins[registry.CaseFold(c.Nickname)] = hash
	}
	return nil
}

func (h *Hub) verifyOperCredential(nick, password string) bool {
	hash, ok := h.admins[registry.CaseFold(nick)]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
