package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"githost.dev/githost/cdc"
	"githost.dev/githost/hooks"
	"githost.dev/githost/objectstore"
	"githost.dev/githost/policy"
	"githost.dev/githost/protocol"
	"githost.dev/githost/protocol/object"
	"githost.dev/githost/refstore"
)

// handleReceivePack implements the push pipeline: parse the ref-update
// commands and packfile, validate and ingest the pack, run pre-receive and
// per-ref update hooks, apply the accepted refs under CAS, run
// post-receive/post-update hooks, and report per-command status.
func (s *Server) handleReceivePack(w http.ResponseWriter, r *http.Request, repo *RepositoryContext, actor string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	// PARSE
	commands, packData, err := parseReceivePackRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// negotiated holds the capability set the client sent on the first
	// command line; every command in the batch shares one negotiation.
	var negotiated protocol.Capabilities
	if len(commands) > 0 {
		negotiated = commands[0].Capabilities
	}

	// VALIDATE_COMMANDS: record a per-ref error for every command that
	// fails validation, but keep validating and processing the rest of
	// the batch rather than aborting on the first bad command.
	rejected := make(map[string]error)
	valid := make([]protocol.RefUpdateCommand, 0, len(commands))
	for _, cmd := range commands {
		if _, err := protocol.ParseRefName(cmd.RefName); err != nil {
			rejected[cmd.RefName] = fmt.Errorf("invalid ref name: %w", err)
			continue
		}
		if cmd.OldSha != protocol.ZeroSha && !protocol.ValidSha(cmd.OldSha) {
			rejected[cmd.RefName] = protocol.NewShaSyntaxError(cmd.OldSha)
			continue
		}
		if cmd.NewSha != protocol.ZeroSha && !protocol.ValidSha(cmd.NewSha) {
			rejected[cmd.RefName] = protocol.NewShaSyntaxError(cmd.NewSha)
			continue
		}
		if cmd.Kind == protocol.RefUpdateDelete && !negotiated.DeleteRefs {
			rejected[cmd.RefName] = fmt.Errorf("delete-refs not enabled")
			continue
		}
		valid = append(valid, cmd)
	}

	ctx := r.Context()

	// INGEST_PACK
	var newShas []string
	var unpackErr error
	if len(packData) > 0 {
		newShas, err = s.ingestPack(ctx, repo, packData)
		if err != nil {
			// Deletes need no objects, so only they go on past a failed pack.
			unpackErr = fmt.Errorf("pack ingestion failed: %w", err)
			deletes := valid[:0]
			for _, cmd := range valid {
				if cmd.Kind == protocol.RefUpdateDelete {
					deletes = append(deletes, cmd)
				} else {
					rejected[cmd.RefName] = unpackErr
				}
			}
			valid = deletes
		}
	}

	hc := hooks.HookContext{Repository: repo.ID, Actor: actor, Updates: commandsToUpdates(valid)}

	// PRE_RECEIVE_HOOKS
	if repo.Hooks != nil {
		if err := repo.Hooks.RunPreReceive(ctx, hc); err != nil {
			for _, cmd := range commands {
				rejected[cmd.RefName] = err
			}
			s.report(w, commands, rejected, nil)
			return
		}
	}

	// APPLY_REFS: branch protection, then update hooks, then CAS
	var applied []protocol.RefUpdateCommand
	for _, cmd := range valid {
		if repo.Evaluator != nil {
			isForcePush := false
			if cmd.Kind == protocol.RefUpdateUpdate {
				isFF, err := objectstore.IsAncestor(ctx, repo.Objects, cmd.OldSha, cmd.NewSha)
				if err != nil {
					rejected[cmd.RefName] = fmt.Errorf("ancestry check failed: %w", err)
					continue
				}
				isForcePush = !isFF
			}
			decision := repo.Evaluator.Evaluate(policy.Change{
				RefName:     cmd.RefName,
				Actor:       actor,
				Kind:        changeKindFor(cmd),
				IsForcePush: isForcePush,
			})
			if !decision.Allowed {
				rejected[cmd.RefName] = fmt.Errorf("rejected by branch protection: %s", decision.Reason)
				continue
			}
		}
		applied = append(applied, cmd)
	}

	if repo.Hooks != nil {
		accepted, hookRejected := repo.Hooks.RunUpdate(ctx, hooks.HookContext{
			Repository: repo.ID, Actor: actor, Updates: commandsToUpdates(applied),
		})
		for ref, err := range hookRejected {
			rejected[ref] = err
		}
		applied = filterCommandsByRef(applied, accepted)
	}

	s.emitObjectsCreated(repo, newShas)

	casApplied := s.applyRefUpdates(ctx, repo, applied, negotiated.Atomic, rejected)
	for _, cmd := range casApplied {
		s.emitCDC(repo, cmd, actor)
	}

	// POST_RECEIVE_HOOKS / POST_UPDATE_HOOKS
	if repo.Hooks != nil {
		finalHc := hooks.HookContext{Repository: repo.ID, Actor: actor, Updates: commandsToUpdates(casApplied)}
		repo.Hooks.RunPostReceive(ctx, finalHc)
		repo.Hooks.RunPostUpdate(ctx, finalHc)
	}

	s.report(w, commands, rejected, unpackErr)
}

// applyRefUpdates runs the CAS-apply step for applied, returning the
// commands that actually took effect. When atomic is true, the updates are
// a single transaction: the first CAS failure rolls back every update
// already applied in this call (restoring each ref to its pre-batch value)
// and every command in applied is recorded in rejected, including the ones
// that individually would have succeeded.
func (s *Server) applyRefUpdates(
	ctx context.Context,
	repo *RepositoryContext,
	applied []protocol.RefUpdateCommand,
	atomic bool,
	rejected map[string]error,
) []protocol.RefUpdateCommand {
	var done []protocol.RefUpdateCommand
	for _, cmd := range applied {
		newTarget := cmd.NewSha
		if newTarget == protocol.ZeroSha {
			newTarget = ""
		}
		if err := repo.Refs.CasUpdate(ctx, cmd.RefName, casExpected(cmd.OldSha), newTarget, refstore.KindDirect); err != nil {
			rejected[cmd.RefName] = err
			if atomic {
				s.rollbackRefUpdates(ctx, repo, done)
				for _, c := range applied {
					if c.RefName != cmd.RefName {
						rejected[c.RefName] = fmt.Errorf("rolled back: atomic push failed on %s", cmd.RefName)
					}
				}
				return nil
			}
			continue
		}
		done = append(done, cmd)
	}
	return done
}

// rollbackRefUpdates undoes a batch of already-applied CAS updates, in
// reverse order, restoring each ref to the value it held before done was
// applied.
func (s *Server) rollbackRefUpdates(ctx context.Context, repo *RepositoryContext, done []protocol.RefUpdateCommand) {
	for i := len(done) - 1; i >= 0; i-- {
		cmd := done[i]
		currentTarget := cmd.NewSha
		if currentTarget == protocol.ZeroSha {
			currentTarget = ""
		}
		oldTarget := casExpected(cmd.OldSha)
		_ = repo.Refs.CasUpdate(ctx, cmd.RefName, currentTarget, oldTarget, refstore.KindDirect)
	}
}

func casExpected(oldSha string) string {
	if oldSha == protocol.ZeroSha {
		return ""
	}
	return oldSha
}

func changeKindFor(cmd protocol.RefUpdateCommand) policy.ChangeKind {
	switch cmd.Kind {
	case protocol.RefUpdateCreate:
		return policy.ChangeCreate
	case protocol.RefUpdateDelete:
		return policy.ChangeDelete
	default:
		return policy.ChangeUpdate
	}
}

func commandsToUpdates(cmds []protocol.RefUpdateCommand) []hooks.RefUpdate {
	out := make([]hooks.RefUpdate, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, hooks.RefUpdate{RefName: cmd.RefName, OldSha: cmd.OldSha, NewSha: cmd.NewSha})
	}
	return out
}

func filterCommandsByRef(cmds []protocol.RefUpdateCommand, accepted []hooks.RefUpdate) []protocol.RefUpdateCommand {
	acceptedSet := make(map[string]bool, len(accepted))
	for _, u := range accepted {
		acceptedSet[u.RefName] = true
	}
	var out []protocol.RefUpdateCommand
	for _, cmd := range cmds {
		if acceptedSet[cmd.RefName] {
			out = append(out, cmd)
		}
	}
	return out
}

// ingestPack parses and delta-resolves the incoming packfile, storing every
// resolved object in the repository's object store, and returns their shas.
func (s *Server) ingestPack(ctx context.Context, repo *RepositoryContext, packData []byte) ([]string, error) {
	pf, err := protocol.ParsePackfile(packData)
	if err != nil {
		return nil, err
	}

	resolved, err := protocol.ResolveDeltas(pf, func(sha string) ([]byte, object.Type, bool) {
		obj, err := repo.Objects.Get(ctx, sha)
		if err != nil {
			return nil, 0, false
		}
		return obj.Data, obj.Type, true
	})
	if err != nil {
		return nil, err
	}

	shas := make([]string, 0, len(resolved))
	for _, obj := range resolved {
		if _, err := repo.Objects.Put(ctx, obj.Type, obj.Data); err != nil {
			return nil, fmt.Errorf("store object %s: %w", obj.Sha, err)
		}
		shas = append(shas, obj.Sha)
	}
	return shas, nil
}

// parseReceivePackRequest splits the request body into the ref-update
// command lines and the trailing packfile payload. The packfile, if
// present, begins at the first occurrence of the "PACK" signature after
// the last pkt-line command.
func parseReceivePackRequest(body []byte) ([]protocol.RefUpdateCommand, []byte, error) {
	stream, _, err := protocol.DecodeStream(body)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: decode pkt-line stream: %w", err)
	}

	var commands []protocol.RefUpdateCommand
	consumed := 0
	for _, pkt := range stream {
		consumed += pkt.BytesConsumed
		if pkt.Kind == protocol.KindFlush {
			break
		}
		if pkt.Kind != protocol.KindData {
			continue
		}
		cmd, err := protocol.ParseRefUpdateCommand(bytes.TrimSuffix(pkt.Payload, []byte("\n")))
		if err != nil {
			return nil, nil, fmt.Errorf("transport: %w", err)
		}
		commands = append(commands, cmd)
	}

	if len(commands) == 0 {
		return nil, nil, fmt.Errorf("transport: no ref-update commands in request")
	}

	idx := bytes.Index(body[consumed:], []byte("PACK"))
	if idx < 0 {
		return commands, nil, nil
	}
	return commands, body[consumed+idx:], nil
}

// report writes the report-status pkt-line response: "unpack ok" (or the
// ingestion error), then one "ok <ref>"/"ng <ref> <reason>" line per
// command.
func (s *Server) report(w http.ResponseWriter, commands []protocol.RefUpdateCommand, rejected map[string]error, unpackErr error) {
	w.Header().Set("Content-Type", "application/x-git-receive-pack-result")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if unpackErr != nil {
		_ = writePkt(w, []byte(fmt.Sprintf("unpack %s\n", unpackErr.Error())))
	} else {
		_ = writePkt(w, []byte("unpack ok\n"))
	}

	for _, cmd := range commands {
		if err, failed := rejected[cmd.RefName]; failed {
			_ = writePkt(w, []byte(fmt.Sprintf("ng %s %s\n", cmd.RefName, err.Error())))
			continue
		}
		_ = writePkt(w, []byte(fmt.Sprintf("ok %s\n", cmd.RefName)))
	}
	_ = writeFlush(w)
}

// emitObjectsCreated records one CDC event per newly-stored object from an
// ingested pack.
func (s *Server) emitObjectsCreated(repo *RepositoryContext, shas []string) {
	if repo.CDC == nil || repo.Sequence == nil {
		return
	}
	for _, sha := range shas {
		repo.CDC.Emit(cdc.Event{
			Type:        cdc.EventObjectCreated,
			Source:      repo.ID,
			TimestampMs: time.Now().UnixMilli(),
			Sequence:    repo.Sequence.Next(),
			Version:     1,
			Payload:     map[string]any{"sha": sha},
		})
	}
}

// emitCDC records a ref-mutation event on the repository's CDC pipeline,
// if one is configured.
func (s *Server) emitCDC(repo *RepositoryContext, cmd protocol.RefUpdateCommand, actor string) {
	if repo.CDC == nil || repo.Sequence == nil {
		return
	}
	evType := cdc.EventRefUpdated
	switch cmd.Kind {
	case protocol.RefUpdateCreate:
		evType = cdc.EventRefCreated
	case protocol.RefUpdateDelete:
		evType = cdc.EventRefDeleted
	}
	repo.CDC.Emit(cdc.Event{
		Type:        evType,
		Source:      repo.ID,
		TimestampMs: time.Now().UnixMilli(),
		Sequence:    repo.Sequence.Next(),
		Version:     1,
		Payload: map[string]any{
			"ref":     cmd.RefName,
			"old_sha": cmd.OldSha,
			"new_sha": cmd.NewSha,
			"actor":   actor,
		},
	})
}
