package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"githost.dev/githost/objectstore"
	"githost.dev/githost/protocol"
)

// handleService dispatches a POST to /git-upload-pack or /git-receive-pack
// after authorizing the request.
func (s *Server) handleService(w http.ResponseWriter, r *http.Request, repoID string, svc Service) {
	actor, ok := s.authorize(w, r, repoID, svc)
	if !ok {
		return
	}

	repo, err := s.Repos.Resolve(r.Context(), repoID)
	if err != nil {
		http.Error(w, "repository not found", http.StatusNotFound)
		return
	}

	switch svc {
	case ServiceUploadPack:
		s.handleUploadPack(w, r, repo)
	case ServiceReceivePack:
		s.handleReceivePack(w, r, repo, actor)
	}
}

// handleUploadPack implements the fetch negotiation: read "want"/"have"
// lines up to the client's "done", compute the object set reachable from
// wants but not from haves, and stream it back as a packfile: multiplexed on
// side-band-64k when the client negotiated it, as plain pkt-lines otherwise.
func (s *Server) handleUploadPack(w http.ResponseWriter, r *http.Request, repo *RepositoryContext) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	wants, haves, caps, err := parseUploadPackRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(wants) == 0 {
		http.Error(w, "no want lines in request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	shas, err := objectstore.Reachable(ctx, repo.Objects, wants, haves)
	if err != nil {
		s.Log.Error("upload-pack: reachability walk failed", "repo", repo.ID, "error", err)
		http.Error(w, "failed to compute object set", http.StatusInternalServerError)
		return
	}

	packObjects := make([]protocol.PackObject, 0, len(shas))
	for _, sha := range shas {
		obj, err := repo.Objects.Get(ctx, sha)
		if err != nil {
			s.Log.Error("upload-pack: object missing during pack assembly", "sha", sha, "error", err)
			http.Error(w, "object store inconsistency", http.StatusInternalServerError)
			return
		}
		packObjects = append(packObjects, protocol.PackObject{Type: obj.Type, Data: obj.Data})
	}

	packed, err := protocol.WritePackfile(packObjects)
	if err != nil {
		s.Log.Error("upload-pack: pack assembly failed", "repo", repo.ID, "error", err)
		http.Error(w, "failed to assemble packfile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	// ACK uses the first have line, and only when it actually resolves in
	// the object store: that's the real point of commonality the client
	// can stop walking back from. A have the server doesn't recognise
	// gives the client no useful common base, so it gets a NAK instead.
	ackLine := "NAK\n"
	if len(haves) > 0 {
		if ok, _ := repo.Objects.Has(ctx, haves[0]); ok {
			ackLine = fmt.Sprintf("ACK %s\n", haves[0])
		}
	}
	_ = writePkt(w, []byte(ackLine))

	if caps.SideBand64k {
		writeSideBand(w, packed)
	} else {
		writeRawPack(w, packed)
	}
	_ = writeFlush(w)
}

// writeRawPack emits packed as a sequence of raw pkt-line payloads, used
// when the client didn't negotiate side-band-64k.
func writeRawPack(w io.Writer, packed []byte) {
	reader := bufio.NewReader(bytes.NewReader(packed))
	buf := make([]byte, protocol.MaxPktLineDataSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			_ = writePkt(w, buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// parseUploadPackRequest decodes the client's want/have pkt-line stream up
// to and including the "done" line. The capabilities negotiated on the
// first want line are returned alongside the want/have sha lists.
func parseUploadPackRequest(body []byte) (wants, haves []string, caps protocol.Capabilities, err error) {
	stream, _, err := protocol.DecodeStream(body)
	if err != nil {
		return nil, nil, protocol.Capabilities{}, fmt.Errorf("transport: decode pkt-line stream: %w", err)
	}
	first := true
	for _, pkt := range stream {
		if pkt.Kind != protocol.KindData {
			continue
		}
		line := strings.TrimSuffix(string(pkt.Payload), "\n")
		switch {
		case strings.HasPrefix(line, "want "):
			fields := strings.Fields(line)
			if len(fields) < 2 || !protocol.ValidSha(fields[1]) {
				return nil, nil, protocol.Capabilities{}, fmt.Errorf("transport: malformed want line %q", line)
			}
			if first {
				caps = protocol.ParseCapabilities(strings.Join(fields[2:], " "))
				first = false
			}
			wants = append(wants, fields[1])
		case strings.HasPrefix(line, "have "):
			fields := strings.Fields(line)
			if len(fields) < 2 || !protocol.ValidSha(fields[1]) {
				return nil, nil, protocol.Capabilities{}, fmt.Errorf("transport: malformed have line %q", line)
			}
			haves = append(haves, fields[1])
		case line == "done":
			return wants, haves, caps, nil
		}
	}
	return wants, haves, caps, nil
}

// sideBandMaxChunk keeps each side-band-64k frame under the pkt-line limit
// once the leading band-id byte is accounted for.
const sideBandMaxChunk = protocol.MaxPktLineDataSize - 1

// writeSideBand multiplexes packed onto side-band channel 1 (pack data), in
// chunks sized to fit inside one pkt-line each.
func writeSideBand(w io.Writer, packed []byte) {
	reader := bufio.NewReader(bytes.NewReader(packed))
	buf := make([]byte, sideBandMaxChunk)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			frame := append([]byte{1}, buf[:n]...)
			_ = writePkt(w, frame)
		}
		if err != nil {
			return
		}
	}
}
