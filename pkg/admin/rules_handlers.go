package admin

import (
	"net/http"

	"github.com/getmockd/interceptd/pkg/httputil"
	"github.com/getmockd/interceptd/pkg/rules"
)

func (a *API) handleGetActiveRules(w http.ResponseWriter, _ *http.Request) {
	rs, err := a.rules.Active()
	if err != nil {
		writeStoreError(w, a.log, "get active rules", err)
		return
	}
	httputil.WriteOK(w, rs)
}

// handleSaveActiveRules validates and stores the active rule set, then
// applies it to the mock plugin without waiting for the file watcher.
func (a *API) handleSaveActiveRules(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	rs, err := a.rules.SaveActive(data)
	if err != nil {
		writeStoreError(w, a.log, "save active rules", err)
		return
	}
	a.applyRules(rs)
	httputil.WriteOK(w, rs)
}

func (a *API) applyRules(rs *rules.RuleSet) {
	if a.onRules != nil {
		a.onRules(rs)
	}
	a.log.Info("active rule set updated", "rules", len(rs.Rules), "folder", rs.Folder())
}

func (a *API) handleListRuleSets(w http.ResponseWriter, _ *http.Request) {
	names, err := a.rules.List()
	if err != nil {
		writeStoreError(w, a.log, "list rule sets", err)
		return
	}
	httputil.WriteOK(w, map[string]any{"sets": names})
}

func (a *API) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	rs, err := a.rules.Get(r.PathValue("name"))
	if err != nil {
		writeStoreError(w, a.log, "get rule set", err)
		return
	}
	httputil.WriteOK(w, rs)
}

func (a *API) handleSaveRuleSet(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	rs, err := a.rules.Save(r.PathValue("name"), data)
	if err != nil {
		writeStoreError(w, a.log, "save rule set", err)
		return
	}
	httputil.WriteOK(w, rs)
}
