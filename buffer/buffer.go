package buffer

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"difftab/logger"
	"difftab/types"

	"github.com/neovim/go-client/nvim"
)

// Config controls how suggestions are drawn.
type Config struct {
	GhostHighlight     string // highlight group for ghost text
	DeletedHighlight   string // highlight group marking lines the suggestion removes
	IndicatorHighlight string // highlight group for the accept indicator
	IndicatorText      string // virtual text shown at the end of the first changed line
}

func (c Config) withDefaults() Config {
	if c.GhostHighlight == "" {
		c.GhostHighlight = "Comment"
	}
	if c.DeletedHighlight == "" {
		c.DeletedHighlight = "DiffDelete"
	}
	if c.IndicatorHighlight == "" {
		c.IndicatorHighlight = "MoreMsg"
	}
	if c.IndicatorText == "" {
		c.IndicatorText = "⇥ tab"
	}
	return c
}

// Host mirrors the focused Neovim buffer and implements the engine's view of
// the document. Editor traffic goes through batched RPC so each sync is a
// single round trip; the cached state is guarded by mu because the engine
// reads it from its own goroutines while syncs run on the RPC handler.
type Host struct {
	client *nvim.Nvim
	config Config

	mu        sync.Mutex
	nsID      int
	id        nvim.Buffer
	text      string
	cursor    int // byte offset into text
	path      string
	workspace string
	version   int
	pending   *pendingEcho
}

// pendingEcho remembers the transaction we just applied so the resulting
// autocmd-driven change can be tagged as self-inflicted. The expected text is
// compared on the next sync: if the user got an edit in first, the echo no
// longer matches and the change is delivered untagged.
type pendingEcho struct {
	tag  string
	text string
}

// SyncResult reports what a SyncDocument call observed.
type SyncResult struct {
	// Switched is set when a different buffer moved under the window; the
	// engine's document model must be reset rather than diffed.
	Switched bool
	// Change is non-nil when the buffer text changed in place.
	Change *types.DocumentChange
}

func NewHost(client *nvim.Nvim, config Config) *Host {
	return &Host{
		client: client,
		config: config.withDefaults(),
		nsID:   -1,
	}
}

// Attach creates the decoration namespace and primes the cache from the
// current buffer. Must run after the RPC loop is serving.
func (h *Host) Attach() error {
	nsID, err := h.client.CreateNamespace("difftab")
	if err != nil {
		return fmt.Errorf("failed to create namespace: %w", err)
	}

	h.mu.Lock()
	h.nsID = nsID
	h.mu.Unlock()

	_, err = h.SyncDocument()
	return err
}

// SyncDocument reads the focused buffer in one batched round trip and folds
// it into the cache. The result carries the document change to feed the
// engine, or the buffer switch that invalidates the document model.
func (h *Host) SyncDocument() (*SyncResult, error) {
	defer logger.Trace("buffer.SyncDocument")()

	batch := h.client.NewBatch()

	var currentBuf nvim.Buffer
	var name string
	var rawLines [][]byte
	var cursor [2]int
	var cwd string

	batch.CurrentBuffer(&currentBuf)
	batch.BufferName(nvim.Buffer(0), &name)
	batch.BufferLines(nvim.Buffer(0), 0, -1, false, &rawLines)
	batch.WindowCursor(nvim.Window(0), &cursor)
	batch.ExecLua(`return vim.fn.getcwd()`, &cwd, nil)

	if err := batch.Execute(); err != nil {
		logger.Error("error executing sync batch: %v", err)
		return nil, err
	}

	lines := make([]string, len(rawLines))
	for i, line := range rawLines {
		lines[i] = string(line)
	}
	newText := strings.Join(lines, "\n")

	h.mu.Lock()
	switched := currentBuf != h.id
	oldID := h.id
	oldText := h.text
	pending := h.pending

	h.id = currentBuf
	h.text = newText
	h.cursor = offsetForPosition(newText, cursor[0], cursor[1])
	h.path = relativeToWorkspace(name, cwd)
	h.workspace = cwd

	if switched {
		h.version = 0
		h.pending = nil
		h.mu.Unlock()

		// Decorations left behind on the buffer we moved away from
		if oldID != 0 {
			h.clearNamespaceOn(oldID)
		}
		return &SyncResult{Switched: true}, nil
	}

	if newText == oldText {
		h.mu.Unlock()
		return &SyncResult{}, nil
	}

	h.version++
	h.pending = nil
	version := h.version
	h.mu.Unlock()

	tag := ""
	if pending != nil && pending.text == newText {
		tag = pending.tag
	}

	from, to, inserted := editRange(oldText, newText)
	return &SyncResult{Change: &types.DocumentChange{
		Snapshot: types.DocumentSnapshot{Text: newText, Version: version},
		From:     from,
		To:       to,
		Inserted: inserted,
		Tag:      tag,
	}}, nil
}

// SyncCursor refreshes only the cached cursor position.
func (h *Host) SyncCursor() error {
	pos, err := h.client.WindowCursor(nvim.Window(0))
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.cursor = offsetForPosition(h.text, pos[0], pos[1])
	h.mu.Unlock()
	return nil
}

func (h *Host) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.text
}

func (h *Host) Selection() (from, to int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor, h.cursor
}

func (h *Host) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

// Workspace returns the editor's working directory as of the last sync.
func (h *Host) Workspace() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.workspace
}

func (h *Host) Version() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

const diagnosticsLua = `
local out = {}
for _, d in ipairs(vim.diagnostic.get(0)) do
	out[#out + 1] = string.format("line %d: %s", d.lnum + 1, d.message)
end
return out
`

// Diagnostics returns the editor's diagnostic messages for the focused
// buffer, one per line.
func (h *Host) Diagnostics() []string {
	var lines []string
	if err := h.client.ExecLua(diagnosticsLua, &lines); err != nil {
		logger.Warn("failed to read diagnostics: %v", err)
		return nil
	}
	return lines
}

// ApplyTransaction replaces a byte range of the document and places the
// cursor. Only the lines the range touches are rewritten. The resulting
// autocmd change is delivered by the next SyncDocument, tagged with the
// transaction's tag.
func (h *Host) ApplyTransaction(tx *types.Transaction) error {
	defer logger.Trace("buffer.ApplyTransaction")()

	h.mu.Lock()
	oldText := h.text
	buf := h.id
	nsID := h.nsID
	h.mu.Unlock()

	if tx.From < 0 || tx.To > len(oldText) || tx.From > tx.To {
		return fmt.Errorf("transaction range [%d, %d) outside document (len %d)", tx.From, tx.To, len(oldText))
	}

	newText := oldText[:tx.From] + tx.Insert + oldText[tx.To:]
	startLine, endLine, blockLines := replaceBlock(oldText, tx.From, tx.To, tx.Insert)

	replacement := make([][]byte, len(blockLines))
	for i, line := range blockLines {
		replacement[i] = []byte(line)
	}

	row, col := positionForOffset(newText, tx.Cursor)

	batch := h.client.NewBatch()
	batch.ClearBufferNamespace(buf, nsID, 0, -1)
	batch.SetBufferLines(buf, startLine, endLine, false, replacement)
	batch.SetWindowCursor(nvim.Window(0), [2]int{row, col})
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("failed to apply transaction: %w", err)
	}

	h.mu.Lock()
	h.pending = &pendingEcho{tag: tx.Tag, text: newText}
	h.mu.Unlock()
	return nil
}

// RenderDecorations draws the decoration set as extmarks, replacing whatever
// was rendered before.
func (h *Host) RenderDecorations(decorations []types.Decoration) error {
	h.mu.Lock()
	buf := h.id
	nsID := h.nsID
	h.mu.Unlock()

	batch := h.client.NewBatch()
	batch.ClearBufferNamespace(buf, nsID, 0, -1)

	markIDs := make([]int, len(decorations))
	for i, d := range decorations {
		opts := h.extmarkOpts(d)
		if opts == nil {
			continue
		}
		batch.SetBufferExtmark(buf, nsID, d.Line-1, d.Col, opts, &markIDs[i])
	}

	if err := batch.Execute(); err != nil {
		return fmt.Errorf("failed to render decorations: %w", err)
	}
	return nil
}

// ClearDecorations removes all extmarks in the host's namespace.
func (h *Host) ClearDecorations() error {
	h.mu.Lock()
	buf := h.id
	nsID := h.nsID
	h.mu.Unlock()
	return h.client.ClearBufferNamespace(buf, nsID, 0, -1)
}

func (h *Host) clearNamespaceOn(buf nvim.Buffer) {
	h.mu.Lock()
	nsID := h.nsID
	h.mu.Unlock()

	if err := h.client.ClearBufferNamespace(buf, nsID, 0, -1); err != nil {
		logger.Warn("error clearing decorations on buffer %d: %v", int(buf), err)
	}
}

// extmarkOpts maps one decoration onto nvim_buf_set_extmark options. Ghost
// text past the end of a line renders inline at its column, a replacing ghost
// overlays the old line, an inserted line renders as a virtual line below its
// anchor (above it for a top-of-file insertion), and a removal is marked by
// highlighting the doomed line.
func (h *Host) extmarkOpts(d types.Decoration) map[string]interface{} {
	switch d.Kind {
	case types.DecorationGhostText:
		switch {
		case d.Replaces && d.Text == "":
			return map[string]interface{}{
				"line_hl_group": h.config.DeletedHighlight,
			}
		case d.Replaces:
			return map[string]interface{}{
				"virt_text":     chunks(d.Text, h.config.GhostHighlight),
				"virt_text_pos": "overlay",
			}
		case d.Col > 0:
			return map[string]interface{}{
				"virt_text":     chunks(d.Text, h.config.GhostHighlight),
				"virt_text_pos": "inline",
			}
		default:
			opts := map[string]interface{}{
				"virt_lines": [][][]interface{}{{{d.Text, h.config.GhostHighlight}}},
			}
			if d.Above {
				opts["virt_lines_above"] = true
			}
			return opts
		}

	case types.DecorationAcceptIndicator:
		return map[string]interface{}{
			"virt_text":     chunks(h.config.IndicatorText, h.config.IndicatorHighlight),
			"virt_text_pos": "eol",
		}
	}
	return nil
}

func chunks(text, hl string) [][]interface{} {
	return [][]interface{}{{text, hl}}
}

// RegisterEventHandler subscribes to autocmd notifications forwarded by the
// editor plugin.
func (h *Host) RegisterEventHandler(handler func(event string)) error {
	return h.client.RegisterHandler("difftab_event", func(_ *nvim.Nvim, event string) {
		handler(event)
	})
}

// RegisterAcceptHandler serves the synchronous accept request. The returned
// bool tells the keymap whether a suggestion was applied, so it can fall back
// to inserting a literal tab.
func (h *Host) RegisterAcceptHandler(handler func() bool) error {
	return h.client.RegisterHandler("difftab_accept", func(_ *nvim.Nvim) (bool, error) {
		return handler(), nil
	})
}

// replaceBlock computes the SetBufferLines call realizing a byte-range
// replacement: the 0-indexed exclusive line range [startLine, endLine) to
// rewrite and its new content. Lines the range does not touch are left alone.
func replaceBlock(text string, from, to int, insert string) (startLine, endLine int, lines []string) {
	startLine = strings.Count(text[:from], "\n")
	lastLine := strings.Count(text[:to], "\n")

	blockStart, _ := lineSpan(text, startLine)
	_, blockEnd := lineSpan(text, lastLine)

	block := text[blockStart:from] + insert + text[to:blockEnd]
	return startLine, lastLine + 1, strings.Split(block, "\n")
}

// lineSpan returns the byte range of the given 0-indexed line, excluding its
// terminating newline.
func lineSpan(text string, line int) (start, end int) {
	for i := 0; i < line; i++ {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			return start, len(text)
		}
		start += nl + 1
	}
	end = len(text)
	if nl := strings.IndexByte(text[start:], '\n'); nl >= 0 {
		end = start + nl
	}
	return start, end
}

// offsetForPosition converts a 1-indexed row and 0-indexed byte column to a
// byte offset, clamping both to the document.
func offsetForPosition(text string, row, col int) int {
	offset := 0
	for line := 1; line < row; line++ {
		nl := strings.IndexByte(text[offset:], '\n')
		if nl < 0 {
			break
		}
		offset += nl + 1
	}

	lineLen := len(text) - offset
	if nl := strings.IndexByte(text[offset:], '\n'); nl >= 0 {
		lineLen = nl
	}
	if col < 0 {
		col = 0
	}
	if col > lineLen {
		col = lineLen
	}
	return offset + col
}

// positionForOffset is the inverse: byte offset to 1-indexed row and
// 0-indexed byte column.
func positionForOffset(text string, offset int) (row, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	row = 1 + strings.Count(text[:offset], "\n")
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	return row, offset - lineStart
}

// editRange reduces an old-to-new text transition to the single replaced
// byte range: [from, to) of the old text becomes inserted.
func editRange(oldText, newText string) (from, to int, inserted string) {
	limit := min(len(oldText), len(newText))
	for from < limit && oldText[from] == newText[from] {
		from++
	}

	oldEnd, newEnd := len(oldText), len(newText)
	for oldEnd > from && newEnd > from && oldText[oldEnd-1] == newText[newEnd-1] {
		oldEnd--
		newEnd--
	}
	return from, oldEnd, newText[from:newEnd]
}

// relativeToWorkspace strips the workspace prefix from an absolute buffer
// name. Paths outside the workspace stay absolute.
func relativeToWorkspace(absolutePath, workspacePath string) string {
	if absolutePath == "" {
		return ""
	}
	absolutePath = filepath.Clean(absolutePath)
	workspacePath = filepath.Clean(workspacePath)

	if relativePath, found := strings.CutPrefix(absolutePath, workspacePath); found {
		return strings.TrimPrefix(relativePath, string(filepath.Separator))
	}
	return absolutePath
}
