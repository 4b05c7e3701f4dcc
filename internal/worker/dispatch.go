package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chatlab/chatlab-core/internal/coreerr"
	"github.com/chatlab/chatlab-core/internal/format"
	"github.com/chatlab/chatlab-core/internal/importer"
	"github.com/chatlab/chatlab-core/internal/merge"
	"github.com/chatlab/chatlab-core/internal/parser/event"
	"github.com/chatlab/chatlab-core/internal/query"
	"github.com/chatlab/chatlab-core/internal/sessioncache"
	"github.com/chatlab/chatlab-core/internal/staging"
	"github.com/chatlab/chatlab-core/internal/store"
)

// Submit runs req to completion, posting progress through onProgress (which
// may be nil) and enforcing timeoutFor(req.Op) (§4.8). It never panics on a
// bad payload type; a mismatch comes back as a Response with OK=false.
func (h *Host) Submit(ctx context.Context, req Request, onProgress ProgressFunc) Response {
	ctx, cancel := context.WithTimeout(ctx, timeoutFor(req.Op))
	defer cancel()

	result, err := h.dispatch(ctx, req, onProgress)
	if err != nil {
		return Response{ID: req.ID, OK: false, Err: toCoreErr(err)}
	}
	return Response{ID: req.ID, OK: true, Result: result}
}

func toCoreErr(err error) *coreerr.Error {
	if ce, ok := err.(*coreerr.Error); ok {
		return ce
	}
	if code, ok := coreerr.CodeOf(err); ok {
		return coreerr.New(code, err.Error())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return coreerr.New(coreerr.CodeCancelled, "request cancelled")
	}
	return coreerr.Wrap(coreerr.CodeIO, err, "request failed").(*coreerr.Error)
}

func (h *Host) dispatch(ctx context.Context, req Request, onProgress ProgressFunc) (any, error) {
	switch req.Op {

	case OpImportStream:
		p, ok := req.Payload.(ImportStreamPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		progress := h.progressThrottle(req.ID, onProgress)
		result, err := h.pipeline.Import(ctx, p.SourcePath, func(e event.Progress) {
			progress(e.Stage, e.BytesRead, e.TotalBytes, e.MessagesProcessed, e.Percentage, e.Message)
		})
		if err != nil {
			return nil, err
		}
		h.refreshSessionCache(ctx, result.SessionID)
		return result, nil

	case OpImportAnalyzeIncremental:
		p, ok := req.Payload.(ImportAnalyzeIncrementalPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		return h.pipeline.AnalyzeIncremental(ctx, p.SessionID, p.SourcePath, h.deps.TempDir, h.deps.Dispatch)

	case OpImportIncremental:
		p, ok := req.Payload.(ImportIncrementalPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		h.evict(p.SessionID) // don't serve stale cached rows mid-write
		result, err := h.pipeline.Incremental(ctx, p.SessionID, p.SourcePath, h.deps.TempDir, h.deps.Dispatch)
		if err != nil {
			return nil, err
		}
		h.refreshSessionCache(ctx, result.SessionID)
		oh, err := h.readEngine(ctx, result.SessionID)
		if err != nil {
			return nil, err
		}
		if err := oh.engine.GenerateIndex(ctx, time.Now().Unix()); err != nil {
			return nil, err
		}
		return result, nil

	case OpImportParseFileInfo:
		p, ok := req.Payload.(ImportParseFileInfoPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		return h.parseFileInfo(p.SourcePath)

	case OpSessionGetAll, OpSessionList:
		return h.listSessions(ctx)

	case OpSessionGet:
		p, ok := req.Payload.(SessionGetPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		return h.sessionSummary(ctx, p.SessionID)

	case OpSessionRename:
		p, ok := req.Payload.(SessionRenamePayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		if err := oh.store.Rename(ctx, p.Name); err != nil {
			return nil, err
		}
		h.refreshSessionCache(ctx, p.SessionID)
		return nil, nil

	case OpSessionUpdateOwnerID:
		p, ok := req.Payload.(SessionUpdateOwnerIDPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		if err := oh.store.UpdateOwnerID(ctx, p.OwnerID); err != nil {
			return nil, err
		}
		h.refreshSessionCache(ctx, p.SessionID)
		return nil, nil

	case OpSessionDelete:
		p, ok := req.Payload.(SessionDeletePayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		h.evict(p.SessionID) // handle must close before the file goes away (§9)
		if err := store.Delete(h.sessionPath(p.SessionID)); err != nil {
			return nil, err
		}
		h.deps.SessionCache.Delete(p.SessionID)
		return nil, nil

	case OpSessionUpdateGapThreshold:
		p, ok := req.Payload.(SessionUpdateGapThresholdPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return nil, oh.engine.UpdateGapThreshold(ctx, p.Seconds)

	case OpSessionGenerateIndex:
		p, ok := req.Payload.(SessionGenerateIndexPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return nil, oh.engine.GenerateIndex(ctx, time.Now().Unix())

	case OpSessionHasIndex:
		p, ok := req.Payload.(SessionHasIndexPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.HasIndex(ctx)

	case OpSessionIndexStats:
		p, ok := req.Payload.(SessionIndexStatsPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.IndexStats(ctx)

	case OpSessionClearIndex:
		p, ok := req.Payload.(SessionClearIndexPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return nil, oh.engine.ClearIndex(ctx)

	case OpMemberList:
		p, ok := req.Payload.(MemberListPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.Members(ctx)

	case OpMemberUpdateAliases:
		p, ok := req.Payload.(MemberUpdateAliasesPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return nil, oh.engine.UpdateAliases(ctx, p.MemberID, p.Aliases)

	case OpMemberDelete:
		p, ok := req.Payload.(MemberDeletePayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return nil, oh.engine.DeleteMember(ctx, p.MemberID)

	case OpMemberNameHistory:
		p, ok := req.Payload.(MemberNameHistoryPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.NameHistory(ctx, p.MemberID)

	case OpQueryAvailableYears:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.AvailableYears(ctx, q.Filter) })
	case OpQueryMemberActivity:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.MemberActivity(ctx, q.Filter) })
	case OpQueryHourly:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Hourly(ctx, q.Filter) })
	case OpQueryDaily:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Daily(ctx, q.Filter) })
	case OpQueryWeekday:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Weekday(ctx, q.Filter) })
	case OpQueryMonthly:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Monthly(ctx, q.Filter) })
	case OpQueryYearly:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Yearly(ctx, q.Filter) })
	case OpQueryLengthDistribution:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.LengthDistribution(ctx, q.Filter) })
	case OpQueryTypeDistribution:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.TypeDistribution(ctx, q.Filter) })
	case OpQueryTimeRange:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.TimeRange(ctx, q.Filter) })
	case OpQueryRepeat:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Repeat(ctx, q.Filter) })
	case OpQueryCatchphrase:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Catchphrase(ctx, q.Filter, q.TopN) })
	case OpQueryNightOwl:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.NightOwl(ctx, q.Filter) })
	case OpQueryDragonKing:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.DragonKing(ctx, q.Filter) })
	case OpQueryDiving:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Diving(ctx, q.Filter) })
	case OpQueryMonologue:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Monologue(ctx, q.Filter) })
	case OpQueryMention:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Mention(ctx, q.Filter) })
	case OpQueryMentionGraph:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.MentionGraph(ctx, q.Filter) })
	case OpQueryLaugh:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.Laugh(ctx, q.Filter) })
	case OpQueryMemeBattle:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.MemeBattle(ctx, q.Filter) })
	case OpQueryCheckIn:
		return h.withEngine(ctx, req, func(e *query.Engine, q QueryPayload) (any, error) { return e.CheckIn(ctx, q.Filter) })

	case OpMsgSearch:
		p, ok := req.Payload.(MsgSearchPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.Search(ctx, p.Filter, p.Keywords, p.Limit)

	case OpMsgContext:
		p, ok := req.Payload.(MsgContextPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.ContextMulti(ctx, p.IDs, p.Window)

	case OpMsgRecent:
		p, ok := req.Payload.(MsgRecentPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.Recent(ctx, p.N)

	case OpMsgAllRecent:
		p, ok := req.Payload.(MsgAllRecentPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		engines, err := h.readEngines(ctx, p.SessionIDs)
		if err != nil {
			return nil, err
		}
		return query.AllRecent(ctx, engines, p.N)

	case OpMsgBetween:
		p, ok := req.Payload.(MsgBetweenPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.Between(ctx, p.StartID, p.EndID)

	case OpMsgBefore:
		p, ok := req.Payload.(MsgCursorPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.Before(ctx, p.ID, p.N, p.Filter, p.Keywords)

	case OpMsgAfter:
		p, ok := req.Payload.(MsgCursorPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.After(ctx, p.ID, p.N, p.Filter, p.Keywords)

	case OpMsgFilterWithContext:
		p, ok := req.Payload.(MsgFilterWithContextPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.FilterWithContext(ctx, p.Filter, p.Window)

	case OpMsgFromSessions:
		p, ok := req.Payload.(MsgFromSessionsPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		engines, err := h.readEngines(ctx, p.SessionIDs)
		if err != nil {
			return nil, err
		}
		return query.FromSessions(ctx, engines, p.Filter, p.Keywords, p.Limit)

	case OpSQLExecute:
		p, ok := req.Payload.(SQLExecutePayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.Execute(ctx, p.Query, p.Limit)

	case OpSQLSchema:
		p, ok := req.Payload.(SQLSchemaPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		oh, err := h.readEngine(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return oh.engine.Schema(ctx)

	case OpMergeParseFileInfo:
		p, ok := req.Payload.(MergeParseFileInfoPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		return h.parseFileInfo(p.SourcePath)

	case OpMergeCheckConflicts:
		p, ok := req.Payload.(MergeCheckConflictsPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		return h.mergeCheckConflicts(ctx, p)

	case OpMergeMergeFiles:
		p, ok := req.Payload.(MergeMergeFilesPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		return h.mergeFiles(ctx, p)

	case OpMergeClearCache:
		p, ok := req.Payload.(MergeClearCachePayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		h.clearMergeSession(p.MergeID)
		return nil, nil

	case OpMigrationCheck:
		return h.migrationCheck(ctx)

	case OpMigrationRun:
		p, ok := req.Payload.(MigrationRunPayload)
		if !ok {
			return nil, badPayload(req.Op)
		}
		lock := h.writeLock(p.SessionID)
		lock.Lock()
		defer lock.Unlock()
		return h.migrationRun(ctx, p.SessionID)

	default:
		return nil, coreerr.New(coreerr.CodeNotFound, "unknown op "+req.Op)
	}
}

func badPayload(op string) error {
	return coreerr.New(coreerr.CodeIO, "malformed payload for op "+op)
}

func (h *Host) withEngine(ctx context.Context, req Request, fn func(*query.Engine, QueryPayload) (any, error)) (any, error) {
	p, ok := req.Payload.(QueryPayload)
	if !ok {
		return nil, badPayload(req.Op)
	}
	oh, err := h.readEngine(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	return fn(oh.engine, p)
}

// readEngines opens (or reuses cached) engines for every requested session,
// skipping unknown ids rather than failing the whole fan-out, since
// msg.allRecent/msg.fromSessions are advisory multi-session sweeps, not a
// single-session read with hard existence guarantees.
func (h *Host) readEngines(ctx context.Context, sessionIDs []string) (map[string]*query.Engine, error) {
	out := make(map[string]*query.Engine, len(sessionIDs))
	for _, id := range sessionIDs {
		oh, err := h.readEngine(ctx, id)
		if err != nil {
			if code, ok := coreerr.CodeOf(err); ok && code == coreerr.CodeNotFound {
				continue
			}
			return nil, err
		}
		out[id] = oh.engine
	}
	return out, nil
}

func (h *Host) knownSessionIDs() ([]string, error) {
	entries, err := os.ReadDir(h.deps.StoreDir)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.CodeIO, err, "list store directory")
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".db") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".db"))
	}
	return ids, nil
}

// sessionSummary returns sessionID's cached summary, populating the cache
// on a miss (§6.4 "session.get").
func (h *Host) sessionSummary(ctx context.Context, sessionID string) (sessioncache.Summary, error) {
	if s, ok, err := h.deps.SessionCache.Get(sessionID); err != nil {
		return sessioncache.Summary{}, err
	} else if ok {
		return s, nil
	}
	return h.refreshSessionCache(ctx, sessionID)
}

// listSessions backs both session.getAll and session.list: every known
// session's cached summary, sorted most-recently-imported first, reading
// through to the store for anything the cache hasn't seen yet (§6.4, §9).
func (h *Host) listSessions(ctx context.Context) ([]sessioncache.Summary, error) {
	ids, err := h.knownSessionIDs()
	if err != nil {
		return nil, err
	}
	out := make([]sessioncache.Summary, 0, len(ids))
	for _, id := range ids {
		s, err := h.sessionSummary(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportedAt > out[j].ImportedAt })
	return out, nil
}

// refreshSessionCache reopens sessionID's meta and message count and writes
// a fresh summary into the cache, called after anything that changes what
// session.getAll/list report (§9).
func (h *Host) refreshSessionCache(ctx context.Context, sessionID string) (sessioncache.Summary, error) {
	oh, err := h.readEngine(ctx, sessionID)
	if err != nil {
		return sessioncache.Summary{}, err
	}
	meta, ownerID, err := oh.store.ReadMeta(ctx)
	if err != nil {
		return sessioncache.Summary{}, err
	}
	count, err := oh.store.MessageCount(ctx)
	if err != nil {
		return sessioncache.Summary{}, err
	}
	s := sessioncache.Summary{
		SessionID:    sessionID,
		Name:         meta.Name,
		Platform:     meta.Platform,
		Kind:         meta.Kind,
		MessageCount: count,
		ImportedAt:   meta.ImportedAt,
		OwnerID:      ownerID,
	}
	if err := h.deps.SessionCache.Put(s); err != nil {
		return sessioncache.Summary{}, err
	}
	return s, nil
}

// FileInfo is import.parseFileInfo/merge.parseFileInfo's result: a cheap
// sniff-only diagnostic that doesn't parse the whole file (§4.1, §6.4).
type FileInfo struct {
	Format    string
	Platform  string
	SizeBytes int64
	Diagnosis *coreerr.Diagnosis
}

func (h *Host) parseFileInfo(sourcePath string) (FileInfo, error) {
	info, statErr := os.Stat(sourcePath)
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	result, err := format.Sniff(h.deps.Registry, sourcePath, format.DefaultPrefixSize)
	if err != nil {
		if ce, ok := err.(*coreerr.Error); ok {
			return FileInfo{SizeBytes: size, Diagnosis: ce.Diagnosis}, nil
		}
		return FileInfo{}, err
	}
	return FileInfo{
		Format:    result.Descriptor.ID,
		Platform:  string(result.Descriptor.Platform),
		SizeBytes: size,
	}, nil
}

// mergeCheckConflicts stages every source path under MergeID (or reuses an
// already-staged session for a re-check) and runs conflict detection over
// them (§4.6 step 2-3).
func (h *Host) mergeCheckConflicts(ctx context.Context, p MergeCheckConflictsPayload) (merge.ConflictReport, error) {
	sess, err := h.stageMergeSources(ctx, p.MergeID, p.SourcePaths)
	if err != nil {
		return merge.ConflictReport{}, err
	}
	return merge.New(sess.sources).CheckConflicts(ctx)
}

// mergeFiles runs the resolution-driven merge over MergeID's staged sources
// and writes the canonical export, optionally re-importing it as a fresh
// session (§4.6 step 4-6).
func (h *Host) mergeFiles(ctx context.Context, p MergeMergeFilesPayload) (string, error) {
	sess, ok := h.mergeOps.Load(p.MergeID)
	if !ok {
		return "", coreerr.New(coreerr.CodeNotFound, "unknown merge id "+p.MergeID)
	}
	m := merge.New(sess.sources)
	doc, err := m.Merge(ctx, p.Resolutions)
	if err != nil {
		return "", err
	}
	outPath := p.OutPath
	if outPath == "" {
		outPath = filepath.Join(h.deps.MergedDir, "merged_"+time.Now().UTC().Format("20060102")+".json")
	}
	f, err := os.Create(outPath)
	if err != nil {
		return "", coreerr.Wrap(coreerr.CodeIO, err, "create merged export")
	}
	defer f.Close()

	var pipeline *importer.Pipeline
	if p.Reimport {
		pipeline = h.pipeline
	}
	sessionID, err := merge.WriteCanonical(ctx, f, doc, outPath, pipeline)
	if err != nil {
		return "", err
	}
	if sessionID != "" {
		h.refreshSessionCache(ctx, sessionID)
	}
	return sessionID, nil
}

// stageMergeSources lazily parses every source path named in sourcePaths
// into its own staging store the first time a MergeID is seen, then
// returns the same mergeSession on subsequent calls so checkConflicts and
// mergeFiles for one merge id share staged data (§4.6).
func (h *Host) stageMergeSources(ctx context.Context, mergeID string, sourcePaths []string) (*mergeSession, error) {
	if sess, ok := h.mergeOps.Load(mergeID); ok {
		return sess, nil
	}

	var sources []merge.Source
	var staged []*staging.Store
	for _, path := range sourcePaths {
		sniff, err := format.Sniff(h.deps.Registry, path, format.DefaultPrefixSize)
		if err != nil {
			return nil, err
		}
		strm, ok := h.deps.Dispatch[sniff.Descriptor.ID]
		if !ok {
			return nil, coreerr.New(coreerr.CodeUnrecognizedFormat, "no parser registered for "+sniff.Descriptor.ID)
		}
		stg, err := staging.New(ctx, h.deps.TempDir, path)
		if err != nil {
			return nil, err
		}
		if err := stg.Ingest(ctx, strm, path); err != nil {
			return nil, coreerr.Wrap(coreerr.CodeParse, err, "parse merge source "+path)
		}
		staged = append(staged, stg)
		sources = append(sources, merge.Source{Store: stg, Filename: filepath.Base(path)})
	}

	sess := &mergeSession{sources: sources, staged: staged}
	h.mergeOps.Store(mergeID, sess)
	return sess, nil
}

// clearMergeSession closes and deletes MergeID's staging stores (§6.4
// "merge.clearCache", §10).
func (h *Host) clearMergeSession(mergeID string) {
	sess, ok := h.mergeOps.LoadAndDelete(mergeID)
	if !ok {
		return
	}
	for _, stg := range sess.staged {
		path := stg.Path
		stg.Close()
		store.Delete(path)
	}
}

// migrationCheck reports, across every known session, which migrations are
// pending (§4.9, §6.4 "migration.check").
func (h *Host) migrationCheck(ctx context.Context) (map[string][]string, error) {
	ids, err := h.knownSessionIDs()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, id := range ids {
		st, err := store.Open(ctx, h.sessionPath(id))
		if err != nil {
			return nil, err
		}
		version, err := st.SchemaVersionOf(ctx)
		if err != nil {
			st.Close()
			return nil, err
		}
		var descs []string
		for _, m := range store.Pending(version) {
			descs = append(descs, m.Description)
		}
		st.Close()
		if len(descs) > 0 {
			out[id] = descs
		}
	}
	return out, nil
}

// migrationRun applies every pending migration for sessionID (§4.9,
// §6.4 "migration.run").
func (h *Host) migrationRun(ctx context.Context, sessionID string) (any, error) {
	h.evict(sessionID) // force a reopen with the post-migration schema
	st, err := store.Open(ctx, h.sessionPath(sessionID))
	if err != nil {
		return nil, err
	}
	defer st.Close()
	if err := store.Run(ctx, st); err != nil {
		return nil, err
	}
	return nil, nil
}
