package structure

import (
	"fmt"
	"strings"
	"sync"

	"github.com/DakotaIrsik/irsiksoftwarebot/internal/fsstore"
)

// Store owns the desired-state document on disk. Admin mutations load the
// document, change it, and rewrite it atomically; nothing mutates it
// implicitly. Documents may be JSON or YAML by file extension.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: strings.TrimSpace(path)}
}

func (s *Store) Load() (Document, error) {
	if s == nil || s.path == "" {
		return Document{}, fmt.Errorf("structure path is required")
	}
	var doc Document
	var found bool
	var err error
	if isYAMLPath(s.path) {
		found, err = fsstore.ReadYAML(s.path, &doc)
	} else {
		found, err = fsstore.ReadJSON(s.path, &doc)
	}
	if err != nil {
		return Document{}, fmt.Errorf("load structure: %w", err)
	}
	if !found {
		return Document{}, fmt.Errorf("load structure: %s does not exist", s.path)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, fmt.Errorf("load structure: %w", err)
	}
	return doc, nil
}

func (s *Store) save(doc Document) error {
	if isYAMLPath(s.path) {
		return fsstore.WriteYAMLAtomic(s.path, doc, fsstore.FileOptions{})
	}
	return fsstore.WriteJSONAtomic(s.path, doc, fsstore.FileOptions{})
}

// mutate serializes document read-modify-write cycles.
func (s *Store) mutate(fn func(*Document) error) error {
	if s == nil {
		return fmt.Errorf("structure store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	return s.save(doc)
}

// RepoInfo summarizes one repository category in the document.
type RepoInfo struct {
	Name    string
	Prefix  string
	Private bool
}

// AddRepo appends a repository category with the standard six channels.
// Private repositories hide the category from everyone and grant Founder
// and Licensee access; commit/release feeds are read-only for non-Founder.
func (s *Store) AddRepo(name string, private bool) (CategorySpec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CategorySpec{}, fmt.Errorf("repository name is required")
	}
	prefix := RepoPrefix(name)
	cat := repoCategoryTemplate(name, prefix, private)
	err := s.mutate(func(doc *Document) error {
		for _, existing := range doc.Categories {
			if strings.Contains(strings.ToLower(existing.Name), prefix) {
				return fmt.Errorf("a category for %q already exists", name)
			}
		}
		doc.Categories = append(doc.Categories, cat)
		return nil
	})
	if err != nil {
		return CategorySpec{}, err
	}
	return cat, nil
}

// RemoveRepo removes the first category whose name contains the prefix and
// returns it. The live channels are untouched; only the document changes.
func (s *Store) RemoveRepo(prefix string) (CategorySpec, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return CategorySpec{}, fmt.Errorf("repository prefix is required")
	}
	var removed CategorySpec
	err := s.mutate(func(doc *Document) error {
		for i, cat := range doc.Categories {
			if strings.Contains(strings.ToLower(cat.Name), prefix) {
				removed = cat
				doc.Categories = append(doc.Categories[:i], doc.Categories[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("repository with prefix %q not found", prefix)
	})
	if err != nil {
		return CategorySpec{}, err
	}
	return removed, nil
}

// AddRole appends a role spec. Color must be a hex color like #00FF00.
func (s *Store) AddRole(role RoleSpec) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return fmt.Errorf("role name is required")
	}
	if len(role.Permissions) == 0 {
		role.Permissions = []string{"ViewChannel", "SendMessages", "ReadMessageHistory"}
	}
	return s.mutate(func(doc *Document) error {
		for _, existing := range doc.Roles {
			if existing.Name == role.Name {
				return fmt.Errorf("role %q already exists in configuration", role.Name)
			}
		}
		doc.Roles = append(doc.Roles, role)
		return nil
	})
}

// ListRepos lists the repository categories: every category that has at
// least one channel and is not a general/support grouping.
func (s *Store) ListRepos() ([]RepoInfo, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	var out []RepoInfo
	for _, cat := range doc.Categories {
		if len(cat.Channels) == 0 {
			continue
		}
		norm := NormalizeName(cat.Name)
		if norm == "general" || norm == "support" {
			continue
		}
		private := false
		for _, entry := range cat.Permissions {
			if entry.Role == "Licensee" {
				private = true
				break
			}
		}
		out = append(out, RepoInfo{
			Name:    strings.TrimSpace(cat.Name),
			Prefix:  strings.SplitN(cat.Channels[0].Name, "-", 2)[0],
			Private: private,
		})
	}
	return out, nil
}

// RepoPrefixes returns the channel-name prefixes of all repository
// categories, used by the router to detect repo channels.
func (s *Store) RepoPrefixes() ([]string, error) {
	repos, err := s.ListRepos()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(repos))
	for _, r := range repos {
		out = append(out, r.Prefix)
	}
	return out, nil
}

// RepoPrefix derives the channel-name prefix for a repository name.
func RepoPrefix(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

func repoCategoryTemplate(name, prefix string, private bool) CategorySpec {
	founderAll := OverlayEntry{
		Role:  "Founder",
		Allow: []string{"ViewChannel", "SendMessages", "ReadMessageHistory", "ManageMessages"},
	}
	readOnlyRole := "@everyone"
	if private {
		readOnlyRole = "Licensee"
	}
	feedOverlay := []OverlayEntry{
		founderAll,
		{Role: readOnlyRole, Allow: []string{"ViewChannel", "ReadMessageHistory"}, Deny: []string{"SendMessages"}},
	}

	cat := CategorySpec{
		Name:        "\U0001F4E6 " + name,
		Description: "Public Project",
		Channels: []ChannelSpec{
			{Name: prefix + "-general", Topic: "General discussion about " + name},
			{Name: prefix + "-feature-requests", Topic: "Request features for " + name + " - tag the bot to create issues"},
			{Name: prefix + "-bug-reports", Topic: "Report bugs - tag the bot to create issues"},
			{Name: prefix + "-commits", Topic: "Automated commit feed", Permissions: feedOverlay},
			{Name: prefix + "-releases", Topic: "Automated release announcements", Permissions: feedOverlay},
			{Name: prefix + "-discussions", Topic: "Community discussions about " + name},
		},
	}
	if private {
		cat.Description = "Private Project - Licensee Only"
		cat.Permissions = []OverlayEntry{
			{Role: "@everyone", Deny: []string{"ViewChannel"}},
			{Role: "Founder", Allow: []string{"ViewChannel", "SendMessages", "ReadMessageHistory", "ManageChannels", "ManageMessages"}},
			{Role: "Licensee", Allow: []string{"ViewChannel", "SendMessages", "ReadMessageHistory"}},
		}
	} else {
		cat.Permissions = []OverlayEntry{
			{Role: "Founder", Allow: []string{"ViewChannel", "SendMessages", "ReadMessageHistory", "ManageChannels", "ManageMessages"}},
		}
	}
	return cat
}

func isYAMLPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
