package proxmox

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	testTicket = "PVE:ticket"
	testCSRF   = "csrf-token"
)

// fakeGuest is one guest held by the fake provider.
type fakeGuest struct {
	kind     guestKind
	vmid     int
	name     string
	status   string
	template bool
	config   map[string]any
}

// fakeProvider is an in-memory Proxmox API double backed by httptest. It
// speaks the api2/json envelope, enforces ticket and CSRF handling, and
// completes every task immediately.
type fakeProvider struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	guests    map[int]*fakeGuest
	nextID    int
	authCalls int
	mutations []string
	lastForm  map[string][]string

	failAuth  bool
	failLists bool
	taskExit  string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{
		t:        t,
		guests:   map[int]*fakeGuest{},
		nextID:   100,
		taskExit: "OK",
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeProvider) addGuest(g fakeGuest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := g
	f.guests[g.vmid] = &copied
}

func (f *fakeProvider) guestByName(name string) *fakeGuest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.guests {
		if g.name == name {
			return g
		}
	}
	return nil
}

func (f *fakeProvider) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mutations)
}

func respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func (f *fakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api2/json/")

	if path == "access/ticket" {
		f.mu.Lock()
		f.authCalls++
		failAuth := f.failAuth
		f.mu.Unlock()
		if failAuth {
			http.Error(w, "authentication failure", http.StatusUnauthorized)
			return
		}
		respond(w, map[string]string{
			"ticket":              testTicket,
			"CSRFPreventionToken": testCSRF,
		})
		return
	}

	cookie, err := r.Cookie("PVEAuthCookie")
	if err != nil || cookie.Value != testTicket {
		http.Error(w, "no ticket", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet && r.Header.Get("CSRFPreventionToken") != testCSRF {
		http.Error(w, "CSRF token missing", http.StatusUnauthorized)
		return
	}

	if r.Method != http.MethodGet {
		_ = r.ParseForm()
		f.mu.Lock()
		f.mutations = append(f.mutations, r.Method+" "+path)
		f.lastForm = r.PostForm
		f.mu.Unlock()
	}

	parts := strings.Split(path, "/")
	switch {
	case path == "cluster/nextid":
		f.mu.Lock()
		id := f.nextID
		f.mu.Unlock()
		respond(w, strconv.Itoa(id))

	case len(parts) == 3 && parts[0] == "nodes" && (parts[2] == "qemu" || parts[2] == "lxc"):
		kind := guestKind(parts[2])
		if r.Method == http.MethodGet {
			f.handleList(w, kind)
			return
		}
		f.handleCreateContainer(w, r)

	case len(parts) == 5 && parts[2] == "tasks" && parts[4] == "status":
		f.mu.Lock()
		exit := f.taskExit
		f.mu.Unlock()
		respond(w, map[string]string{"status": "stopped", "exitstatus": exit})

	case len(parts) == 5 && parts[4] == "clone":
		f.handleClone(w, r, parts)

	case len(parts) == 5 && parts[4] == "config":
		f.handleConfig(w, r, parts)

	case len(parts) == 6 && parts[4] == "status":
		f.handleStatus(w, parts)

	case len(parts) == 4 && r.Method == http.MethodDelete:
		f.handleDelete(w, parts)

	default:
		f.t.Errorf("fake provider got unexpected request: %s %s", r.Method, path)
		http.NotFound(w, r)
	}
}

func (f *fakeProvider) handleList(w http.ResponseWriter, kind guestKind) {
	f.mu.Lock()
	failLists := f.failLists
	var entries []map[string]any
	for _, g := range f.guests {
		if g.kind != kind {
			continue
		}
		tpl := 0
		if g.template {
			tpl = 1
		}
		entries = append(entries, map[string]any{
			"vmid":     g.vmid,
			"name":     g.name,
			"status":   g.status,
			"template": tpl,
		})
	}
	f.mu.Unlock()

	if failLists {
		http.Error(w, "cluster not ready", http.StatusInternalServerError)
		return
	}
	respond(w, entries)
}

func (f *fakeProvider) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	vmid, _ := strconv.Atoi(r.PostFormValue("vmid"))
	cfg := map[string]any{"description": r.PostFormValue("description")}
	if v := r.PostFormValue("cores"); v != "" {
		cfg["cores"], _ = strconv.Atoi(v)
	}
	if v := r.PostFormValue("memory"); v != "" {
		cfg["memory"] = v
	}

	f.mu.Lock()
	f.guests[vmid] = &fakeGuest{
		kind:   kindLXC,
		vmid:   vmid,
		name:   r.PostFormValue("hostname"),
		status: "stopped",
		config: cfg,
	}
	f.nextID = vmid + 1
	f.mu.Unlock()

	respond(w, "UPID-create")
}

func (f *fakeProvider) handleClone(w http.ResponseWriter, r *http.Request, parts []string) {
	srcID, _ := strconv.Atoi(parts[3])
	newID, _ := strconv.Atoi(r.PostFormValue("newid"))

	f.mu.Lock()
	src, ok := f.guests[srcID]
	if !ok {
		f.mu.Unlock()
		http.Error(w, fmt.Sprintf("VM %d does not exist", srcID), http.StatusInternalServerError)
		return
	}
	cfg := map[string]any{}
	for k, v := range src.config {
		cfg[k] = v
	}
	f.guests[newID] = &fakeGuest{
		kind:   src.kind,
		vmid:   newID,
		name:   r.PostFormValue("name"),
		status: "stopped",
		config: cfg,
	}
	f.nextID = newID + 1
	f.mu.Unlock()

	respond(w, "UPID-clone")
}

func (f *fakeProvider) handleConfig(w http.ResponseWriter, r *http.Request, parts []string) {
	vmid, _ := strconv.Atoi(parts[3])

	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guests[vmid]
	if !ok {
		http.Error(w, fmt.Sprintf("VM %d does not exist", vmid), http.StatusInternalServerError)
		return
	}

	if r.Method == http.MethodGet {
		respond(w, g.config)
		return
	}
	for key, values := range r.PostForm {
		if key == "cores" {
			g.config[key], _ = strconv.Atoi(values[0])
			continue
		}
		g.config[key] = values[0]
	}
	respond(w, nil)
}

func (f *fakeProvider) handleStatus(w http.ResponseWriter, parts []string) {
	vmid, _ := strconv.Atoi(parts[3])

	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guests[vmid]
	if !ok {
		http.Error(w, fmt.Sprintf("VM %d does not exist", vmid), http.StatusInternalServerError)
		return
	}
	switch parts[5] {
	case "start":
		g.status = "running"
	case "stop":
		g.status = "stopped"
	}
	respond(w, "UPID-status")
}

func (f *fakeProvider) handleDelete(w http.ResponseWriter, parts []string) {
	vmid, _ := strconv.Atoi(parts[3])

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.guests[vmid]; !ok {
		http.Error(w, fmt.Sprintf("VM %d does not exist", vmid), http.StatusInternalServerError)
		return
	}
	delete(f.guests, vmid)
	respond(w, "UPID-delete")
}
