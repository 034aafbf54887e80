package fixture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

// ErrUnknownAccount is returned for accounts the snapshot does not contain.
var ErrUnknownAccount = errors.New("account not in fixture")

// Client serves a Snapshot through reposync.ProviderClient. It is safe for
// concurrent use and can be reloaded while a sync is running.
type Client struct {
	path string

	mu   sync.RWMutex
	snap *Snapshot
}

// NewClient serves an in-memory snapshot.
func NewClient(snap *Snapshot) *Client {
	return &Client{snap: snap}
}

// Open loads the snapshot at path.
func Open(path string) (*Client, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Client{path: path, snap: snap}, nil
}

// Path returns the file the client was opened from, if any.
func (c *Client) Path() string { return c.path }

// Provider returns the provider the snapshot describes.
func (c *Client) Provider() types.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Provider
}

// Reload re-reads the snapshot file. On error the previous snapshot stays in place.
func (c *Client) Reload() error {
	if c.path == "" {
		return fmt.Errorf("fixture client has no backing file")
	}
	snap, err := Load(c.path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	return nil
}

// GetUserAccounts implements reposync.ProviderClient.
func (c *Client) GetUserAccounts(ctx context.Context) (*reposync.AccountListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	listing := &reposync.AccountListing{User: providerAccount(&c.snap.User, types.AccountTypeUser)}
	for i := range c.snap.Organizations {
		listing.Organizations = append(listing.Organizations, providerAccount(&c.snap.Organizations[i], types.AccountTypeOrganization))
	}
	return listing, nil
}

// GetRepositories implements reposync.ProviderClient.
func (c *Client) GetRepositories(ctx context.Context, account reposync.ProviderAccount) ([]reposync.ProviderRepository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	a := c.lookup(account)
	if a == nil {
		return nil, fmt.Errorf("%w: account %s", ErrUnknownAccount, account.ProviderInternalID)
	}
	out := make([]reposync.ProviderRepository, 0, len(a.Repositories))
	for i := range a.Repositories {
		out = append(out, providerRepository(a, &a.Repositories[i]))
	}
	return out, nil
}

// GetUserRoleForAccount implements reposync.ProviderClient. The snapshot only
// records the syncing user's role, so lookups for anyone else are denied.
func (c *Client) GetUserRoleForAccount(ctx context.Context, account reposync.ProviderAccount, user *types.User) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if user == nil || user.ProviderInternalID != c.snap.User.ID {
		return "", false, nil
	}
	a := c.lookup(account)
	if a == nil || a.Role == "" {
		return "", false, nil
	}
	return a.Role, true, nil
}

// ListMembers implements reposync.MemberLister.
func (c *Client) ListMembers(ctx context.Context, account reposync.ProviderAccount) ([]reposync.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	a := c.lookup(account)
	if a == nil {
		return nil, fmt.Errorf("%w: account %s", ErrUnknownAccount, account.ProviderInternalID)
	}
	out := make([]reposync.Member, 0, len(a.Members))
	for _, m := range a.Members {
		out = append(out, reposync.Member{
			ProviderInternalID: m.ID,
			Login:              m.Login,
			Email:              m.Email,
			Permission:         m.Permission,
		})
	}
	return out, nil
}

func (c *Client) lookup(account reposync.ProviderAccount) *Account {
	if account.Type == types.AccountTypeUser {
		if account.ProviderInternalID == c.snap.User.ID {
			return &c.snap.User
		}
		return nil
	}
	for i := range c.snap.Organizations {
		if c.snap.Organizations[i].ID == account.ProviderInternalID {
			return &c.snap.Organizations[i]
		}
	}
	return nil
}

func providerAccount(a *Account, typ types.AccountType) reposync.ProviderAccount {
	return reposync.ProviderAccount{
		ProviderInternalID: a.ID,
		Login:              a.Login,
		Type:               typ,
		ParentProviderID:   a.Parent,
		AvatarURL:          a.AvatarURL,
		URL:                a.URL,
		Metadata:           a.Metadata,
	}
}

func providerRepository(owner *Account, r *Repository) reposync.ProviderRepository {
	pr := reposync.ProviderRepository{
		ProviderInternalID: r.ID,
		Name:               r.Name,
		FullName:           r.FullName,
		Language:           r.Language,
		DefaultBranch:      r.DefaultBranch,
		Visibility:         r.Visibility,
		Private:            r.Private,
		Permissions: reposync.Permissions{
			Admin:       r.Admin,
			Maintain:    r.Maintain,
			Push:        r.Push,
			Triage:      r.Triage,
			Pull:        r.Pull,
			AccessLevel: r.AccessLevel,
			Role:        r.Role,
		},
	}
	if pr.FullName == "" {
		pr.FullName = owner.Login + "/" + r.Name
	}
	if pr.Visibility == "" {
		if r.Private {
			pr.Visibility = "private"
		} else {
			pr.Visibility = "public"
		}
	}
	return pr
}

var (
	_ reposync.ProviderClient = (*Client)(nil)
	_ reposync.MemberLister   = (*Client)(nil)
)
