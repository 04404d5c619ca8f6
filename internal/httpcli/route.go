package httpcli

import (
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/codemicro/sharesrv/internal/vfs"
	"github.com/codemicro/sharesrv/internal/web"
)

// handleGet implements the GET/HEAD routing table from spec §4.5.2.
func (t *txn) handleGet() (cont bool, err error) {
	t.log(t.method + " " + t.reqTarget)

	// Step 1: embedded ".cpr/" assets.
	if t.vpath == ".cpr" || strings.HasPrefix(t.vpath, ".cpr/") {
		suffix := strings.TrimPrefix(t.vpath, ".cpr")
		suffix = strings.TrimPrefix(suffix, "/")
		if served, serr := t.txAsset(suffix); served || serr != nil {
			return true, serr
		}
		// fall through to VFS routing, per spec §4.5.2 step 1.
	}

	vr := t.conn.eng.Auth.VFS()

	// Step 2: silent single-mount redirect.
	if t.vpath == "" && len(t.uparam) == 0 {
		rvol := vr.UserTree(t.uname, true)
		wvol := vr.UserTree(t.uname, false)
		if len(rvol)+len(wvol) == 1 || (equalSets(rvol, wvol) && len(rvol) == 1) {
			if len(rvol) == 1 {
				t.vpath = rvol[0]
			} else {
				t.vpath = wvol[0]
			}
			t.absoluteURLs = true
		}
	}

	// Step 3: access check.
	readable, writable := vr.CanAccess(t.vpath, t.uname)
	if !readable && !writable {
		t.log("inaccessible: " + t.vpath)
		t.uparam = map[string]Value{"h": {Flag: true}}
	}

	// Step 4: mounts index.
	if _, ok := t.uparam["h"]; ok {
		return t.txMounts(vr)
	}

	// Step 5/6.
	if readable {
		return t.txBrowser(vr)
	}
	return t.txUpper(writable)
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		if !seen[v] {
			return false
		}
	}
	return true
}

// txAsset serves a file from the embedded `.cpr/` asset tree, per spec
// §4.5.2 step 1. It returns served=false (never an error) when the asset
// doesn't exist, so the caller can fall through to VFS routing.
func (t *txn) txAsset(suffix string) (served bool, err error) {
	assets := t.conn.eng.Assets
	if assets == nil {
		return false, nil
	}
	clean := path.Clean("/" + suffix)[1:]
	f, oerr := assets.Open(clean)
	if oerr != nil {
		return false, nil
	}
	defer f.Close()
	data, rerr := readAll(f)
	if rerr != nil {
		return false, rerr
	}
	mime := guessMime(clean)
	return true, t.reply(data, "200 OK", mime, nil)
}

func (t *txn) txMounts(vr *vfs.Resolver) (bool, error) {
	data := web.MountsData{
		Readable: vr.UserTree(t.uname, true),
		Writable: vr.UserTree(t.uname, false),
	}
	var buf strBuf
	if err := t.conn.eng.Tpl.Mounts(&buf, data); err != nil {
		return false, err
	}
	return true, t.reply(buf.Bytes(), "200 OK", "text/html", nil)
}

func (t *txn) txUpper(writable bool) (bool, error) {
	t.loudReply("TODO jupper " + t.vpath)
	return true, nil
}

// txBrowser implements spec §4.5.4: breadcrumbs, stat each visible entry,
// classify dir/file, and either render the listing or fall through to
// tx_file for a non-directory resolution.
func (t *txn) txBrowser(vr *vfs.Resolver) (bool, error) {
	vpnodes := []web.BreadcrumbNode{{Href: "", Name: "/"}}
	var built string
	for _, node := range strings.Split(t.vpath, "/") {
		if node == "" {
			continue
		}
		if built == "" {
			built = node
		} else {
			built += "/" + node
		}
		vpnodes = append(vpnodes, web.BreadcrumbNode{Href: url.PathEscape(built) + "/", Name: htmlEscape(node)})
	}

	n, rem, gerr := vr.Get(t.vpath, t.uname, true, false)
	if gerr != nil {
		return false, NewPebkac("404 not found")
	}
	abspath := n.Canonical(rem)

	info, serr := os.Stat(abspath)
	if serr != nil {
		return false, NewPebkac("404 not found")
	}
	if !info.IsDir() {
		return t.txFile(abspath)
	}

	realRoot, entries, lerr := vr.Ls(t.vpath, t.uname)
	if lerr != nil {
		return false, NewPebkac("404 not found")
	}

	var dirs, files []web.Entry
	for _, e := range entries {
		href := e.Name
		if t.absoluteURLs {
			href = strings.TrimPrefix(t.vpath+"/"+e.Name, "/")
		}

		fspath := path.Join(realRoot, e.Name)
		fi, ferr := os.Stat(fspath)
		if ferr != nil {
			continue
		}

		margin := "-"
		if fi.IsDir() {
			margin = "DIR"
			href += "/"
		}

		item := web.Entry{
			Margin:  margin,
			Href:    url.PathEscape(href),
			Name:    htmlEscape(e.Name),
			Size:    fi.Size(),
			ModTime: formatListingTime(fi.ModTime()),
		}
		if fi.IsDir() {
			dirs = append(dirs, item)
		} else {
			files = append(files, item)
		}
	}

	var buf strBuf
	data := web.BrowserData{
		VDir:      t.vpath,
		VPNodes:   vpnodes,
		Entries:   append(dirs, files...),
		CanUpload: t.writableOf(vr),
	}
	if err := t.conn.eng.Tpl.Browser(&buf, data); err != nil {
		return false, err
	}
	return true, t.reply(buf.Bytes(), "200 OK", "text/html", nil)
}

func (t *txn) writableOf(vr *vfs.Resolver) bool {
	_, writable := vr.CanAccess(t.vpath, t.uname)
	return writable
}
