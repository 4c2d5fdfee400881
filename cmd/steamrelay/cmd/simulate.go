package cmd

import (
	"fmt"

	"github.com/jmcleod/steamrelay/account"
	"github.com/jmcleod/steamrelay/platform/memory"
)

// newSimulatedNetwork builds an in-process Steam network holding every
// configured account, all mutual friends. Accounts log in with their
// configured passwords; Steam Guard is not enforced.
func newSimulatedNetwork(creds []*account.Credential) (*memory.Network, error) {
	n := memory.NewNetwork()
	names := make([]string, 0, len(creds))
	for _, c := range creds {
		password, err := c.Password()
		if err != nil {
			return nil, fmt.Errorf("simulating %s: %w", c.Identity(), err)
		}
		if _, err := n.AddAccount(c.Identity(), password, ""); err != nil {
			return nil, fmt.Errorf("simulating %s: %w", c.Identity(), err)
		}
		names = append(names, c.Identity())
	}
	for i, a := range names {
		for _, b := range names[i+1:] {
			if err := n.AddFriends(a, b); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}
