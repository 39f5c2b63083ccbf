package transport

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"githost.dev/githost/objectstore"
	"githost.dev/githost/protocol"
	"githost.dev/githost/protocol/object"
)

// handleInfoRefs implements GET /<repo>/info/refs?service=git-upload-pack
// (or git-receive-pack): the dumb-protocol-compatible advertisement of
// every ref plus a service-specific capability list, in pkt-line framing
// with a leading "# service=<name>" band.
func (s *Server) handleInfoRefs(w http.ResponseWriter, r *http.Request, repoID string) {
	svcName := r.URL.Query().Get("service")
	svc := Service(svcName)
	if svc != ServiceUploadPack && svc != ServiceReceivePack {
		http.Error(w, "unsupported or missing service parameter", http.StatusBadRequest)
		return
	}

	if _, ok := s.authorize(w, r, repoID, svc); !ok {
		return
	}

	repo, err := s.Repos.Resolve(r.Context(), repoID)
	if err != nil {
		http.Error(w, "repository not found", http.StatusNotFound)
		return
	}

	refs, err := repo.Refs.List(r.Context(), "")
	if err != nil {
		http.Error(w, "failed to list refs", http.StatusInternalServerError)
		return
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })

	w.Header().Set("Content-Type", fmt.Sprintf("application/x-%s-advertisement", svcName))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	_ = writePkt(w, []byte(fmt.Sprintf("# service=%s\n", svcName)))
	_ = writeFlush(w)

	caps := advertisedCapabilities(svc).String()

	if len(refs) == 0 {
		zero := protocol.ZeroSha
		line := fmt.Sprintf("%s capabilities^{}\x00%s\n", zero, caps)
		_ = writePkt(w, []byte(line))
	} else {
		ctx := r.Context()
		for i, ref := range refs {
			line := fmt.Sprintf("%s %s", ref.Target, ref.Name)
			if i == 0 {
				line += "\x00" + caps
			}
			line += "\n"
			_ = writePkt(w, []byte(line))

			if peeled, ok := peelTag(ctx, repo.Objects, ref.Target); ok {
				_ = writePkt(w, []byte(fmt.Sprintf("%s %s^{}\n", peeled, ref.Name)))
			}
		}
	}
	_ = writeFlush(w)
}

// peelTag reports the ultimate non-tag sha an annotated tag object points
// at, following a chain of tags if one tag points at another. It reports ok
// == false for anything that isn't an annotated tag (a lightweight tag or
// branch, which already point directly at their target).
func peelTag(ctx context.Context, store objectstore.Store, sha string) (string, bool) {
	const maxTagChain = 10
	found := false
	for i := 0; i < maxTagChain; i++ {
		obj, err := store.Get(ctx, sha)
		if err != nil || obj.Type != object.TypeTag {
			break
		}
		tag, err := object.ParseTag(obj.Data)
		if err != nil {
			break
		}
		sha = tag.Object
		found = true
	}
	return sha, found
}

func advertisedCapabilities(svc Service) protocol.Capabilities {
	caps := protocol.Capabilities{
		SideBand64k: true,
		OfsDelta:    true,
		Agent:       "githost/1.0",
	}
	if svc == ServiceUploadPack {
		caps.MultiAckDetailed = true
		caps.NoProgress = true
		caps.IncludeTag = true
		caps.ThinPack = true
	}
	if svc == ServiceReceivePack {
		caps.ReportStatus = true
		caps.DeleteRefs = true
		caps.Atomic = true
	}
	return caps
}
