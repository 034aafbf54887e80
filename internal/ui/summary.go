package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/reposync/internal/reposync"
	"github.com/steveyegge/reposync/internal/types"
)

// RenderSyncSummary renders a sync result: one line per account, then the
// aggregate counters.
func RenderSyncSummary(result *reposync.SyncResult) string {
	var sb strings.Builder

	sb.WriteString(RenderCategory(string(result.Provider) + " sync"))
	sb.WriteString("\n")
	sb.WriteString(RenderSeparator())
	sb.WriteString("\n")

	summaries := make([]types.AccountSummary, 0, len(result.Accounts))
	for _, s := range result.Accounts {
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return strings.ToLower(summaries[i].Login) < strings.ToLower(summaries[j].Login)
	})

	for _, s := range summaries {
		admin, read := len(s.AllowedRepositories.Admin), len(s.AllowedRepositories.Read)
		detail := fmt.Sprintf("%d admin, %d read", admin, read)
		if admin+read == 0 {
			detail = RenderMuted("no repositories")
		}
		fmt.Fprintf(&sb, "%s %s%s\n", RenderPassIcon(), labelStyle.Render(s.Login), detail)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(&sb, "%s %s%s\n", RenderFailIcon(), labelStyle.Render(f.Login), RenderFail(f.Error))
	}
	if len(summaries) == 0 && len(result.Failures) == 0 {
		fmt.Fprintf(&sb, "%s %s\n", RenderSkipIcon(), RenderMuted("no accounts visible"))
	}

	st := result.Stats
	sb.WriteString("\n")
	sb.WriteString(RenderKeyValue("Accounts", fmt.Sprintf("%d synced, %d created, %d updated, %d parents linked",
		st.AccountsSynced, st.AccountsCreated, st.AccountsUpdated, st.ParentsLinked)))
	sb.WriteString("\n")
	sb.WriteString(RenderKeyValue("Repositories", fmt.Sprintf("%d created, %d updated, %d re-enabled, %d filtered",
		st.RepositoriesCreated, st.RepositoriesUpdated, st.RepositoriesReenabled, st.RepositoriesFiltered)))
	sb.WriteString("\n")
	dup := fmt.Sprintf("%d removed", st.DuplicatesRemoved)
	if st.DuplicateConflicts > 0 {
		dup += ", " + RenderWarn(fmt.Sprintf("%d left for review", st.DuplicateConflicts))
	}
	sb.WriteString(RenderKeyValue("Duplicates", dup))
	sb.WriteString("\n")
	sb.WriteString(RenderKeyValue("Roles", fmt.Sprintf("%d created, %d updated, %d pinned",
		st.RolesCreated, st.RolesUpdated, st.RolesPinned)))
	sb.WriteString("\n")

	if st.AccountsFailed > 0 {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%s %s\n", RenderWarnIcon(), RenderWarn(fmt.Sprintf("%d account(s) failed", st.AccountsFailed)))
	}
	return sb.String()
}

// RenderUserImport renders the outcome of a member import for one account.
func RenderUserImport(login string, imported bool) string {
	if !imported {
		return fmt.Sprintf("%s %s %s\n", RenderSkipIcon(), login, RenderMuted("(provider does not list members)"))
	}
	return fmt.Sprintf("%s %s members imported\n", RenderPassIcon(), login)
}

// ProviderInfo describes a registered provider for `reposync providers`.
type ProviderInfo struct {
	Provider   types.Provider
	AutoEnable bool
	Members    bool
}

// RenderProviders renders one line per registered provider.
func RenderProviders(infos []ProviderInfo) string {
	var sb strings.Builder
	sb.WriteString(RenderCategory("providers"))
	sb.WriteString("\n")
	for i, info := range infos {
		branch := TreeChild
		if i == len(infos)-1 {
			branch = TreeLast
		}
		var traits []string
		if info.AutoEnable {
			traits = append(traits, "auto-enables new repositories")
		}
		if info.Members {
			traits = append(traits, "imports members")
		}
		line := RenderMuted(branch) + labelStyle.Render(string(info.Provider))
		if len(traits) > 0 {
			line += RenderMuted(strings.Join(traits, ", "))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
