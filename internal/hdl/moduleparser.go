package hdl

import (
	"strconv"
	"strings"
)

// ParseModule recognizes a single module definition in cleaned-up source
// text (see spec.md §4.2) and produces its ModuleIR. It fails with
// InvalidSource if no `module NAME ( PORTS ) ;` header is found.
func ParseModule(src string) (*ModuleIR, error) {
	text, err := clean(src)
	if err != nil {
		return nil, err
	}

	start := indexKeyword(text, 0, "module")
	if start < 0 {
		return nil, newErr(InvalidSource, "", "no module declaration found")
	}

	namePos := start + len("module")
	for namePos < len(text) && text[namePos] == ' ' {
		namePos++
	}

	nameEnd := namePos
	for nameEnd < len(text) && isIdentByte(text[nameEnd]) {
		nameEnd++
	}

	if nameEnd == namePos {
		return nil, newErr(InvalidSource, "", "malformed module header")
	}

	name := text[namePos:nameEnd]

	open := strings.IndexByte(text[nameEnd:], '(')
	if open < 0 {
		return nil, newErr(InvalidSource, name, "malformed module header")
	}

	open += nameEnd

	close, err := matchDelim(text, open)
	if err != nil {
		return nil, err
	}

	semi := indexTopLevel(text, ';', close+1)
	if semi < 0 {
		return nil, newErr(InvalidSource, name, "module header missing terminating ';'")
	}

	m := NewModuleIR(name)

	if err := parseHeaderPorts(m, text[open+1:close]); err != nil {
		return nil, err
	}

	body := text[semi+1:]
	// Only the first module is parsed; its body ends at `endmodule`.
	if end := indexKeyword(body, 0, "endmodule"); end >= 0 {
		body = body[:end]
	}

	if err := parseModuleBody(m, body); err != nil {
		return nil, err
	}

	return m, nil
}

// ===========================================================================
// Header port list
// ===========================================================================

func parseHeaderPorts(m *ModuleIR, portList string) error {
	toks := headerTokens(portList)

	dir := ""
	msb, lsb := 0, 0
	hasWidth := false

	for _, t := range toks {
		switch {
		case t == "input" || t == "output":
			dir = t
			msb, lsb, hasWidth = 0, 0, false
		case t == "wire" || t == "logic" || t == "reg" || t == "signed" || t == "unsigned":
			// Modifier keywords accepted and ignored.
		case strings.HasPrefix(t, "["):
			inner := strings.TrimSuffix(strings.TrimPrefix(t, "["), "]")
			colon := strings.IndexByte(inner, ':')

			if colon < 0 {
				return newErr(InvalidSource, t, "malformed port width")
			}

			mv, err1 := strconv.Atoi(strings.TrimSpace(inner[:colon]))
			lv, err2 := strconv.Atoi(strings.TrimSpace(inner[colon+1:]))

			if err1 != nil || err2 != nil {
				return newErr(InvalidSource, t, "malformed port width")
			}

			msb, lsb, hasWidth = mv, lv, true
		case t == ",":
			// Separator only.
		default:
			if dir == "" {
				continue
			}

			decl := &SignalDecl{Name: t, MSB: 0, LSB: 0}
			if hasWidth {
				decl.MSB, decl.LSB = msb, lsb
			}

			if dir == "input" {
				decl.Kind = KindInput
				m.Inputs = append(m.Inputs, t)
			} else {
				decl.Kind = KindOutput
				m.Outputs = append(m.Outputs, t)
			}

			m.Signals[t] = decl
		}
	}

	return nil
}

// headerTokens splits a port list into keyword/bracket-range/identifier/comma
// tokens, mirroring the reference tokenizer's regex
// `\b(?:input|output|wire|logic)\b|\[[^\]]+\]|\w+|,`.
func headerTokens(s string) []string {
	var toks []string

	i := 0
	n := len(s)

	for i < n {
		c := s[i]

		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '[':
			j := strings.IndexByte(s[i:], ']')
			if j < 0 {
				i = n
				break
			}

			toks = append(toks, s[i:i+j+1])
			i += j + 1
		case c == ',':
			toks = append(toks, ",")
			i++
		case isIdentStart(c) || (c >= '0' && c <= '9'):
			j := i
			for j < n && isIdentByte(s[j]) {
				j++
			}

			toks = append(toks, s[i:j])
			i = j
		default:
			i++
		}
	}

	return toks
}

// ===========================================================================
// Module body
// ===========================================================================

func parseModuleBody(m *ModuleIR, body string) error {
	pos := 0
	seqOrder, combOrder := 0, 0

	for {
		for pos < len(body) && body[pos] == ' ' {
			pos++
		}

		if pos >= len(body) {
			return nil
		}

		var (
			next int
			err  error
		)

		switch {
		case hasWordAt(body, pos, "wire"):
			next, err = parseWireDecl(m, body, pos)
		case hasWordAt(body, pos, "reg") || hasWordAt(body, pos, "logic"):
			next, err = parseRegOrMemDecl(m, body, pos)
		case hasWordAt(body, pos, "assign"):
			next, err = parseContinuousAssign(m, body, pos)
		case hasWordAt(body, pos, "always_ff"):
			next, err = parseSeqBlock(m, body, pos, seqOrder)
			seqOrder++
		case hasWordAt(body, pos, "always_comb"):
			next, err = parseCombBlock(m, body, pos, combOrder)
			combOrder++
		default:
			next, err = parseInstantiation(m, body, pos)
		}

		if err != nil {
			return err
		}

		if next <= pos {
			return newErr(InvalidSource, body[pos:], "unrecognized module body construct")
		}

		pos = next
	}
}

func parseWireDecl(m *ModuleIR, body string, pos int) (int, error) {
	semi := indexTopLevel(body, ';', pos)
	if semi < 0 {
		return 0, newErr(InvalidSource, "", "unterminated wire declaration")
	}

	stmt := body[pos+len("wire") : semi]
	stmt = strings.TrimSpace(stmt)

	msb, lsb, hasWidth, rest := consumeRange(stmt)

	eq := topLevelOp(rest, "=")

	if eq >= 0 {
		name := strings.TrimSpace(rest[:eq])
		exprText := strings.TrimSpace(rest[eq+1:])

		width := 1
		if hasWidth {
			width = absInt(msb-lsb) + 1
		}

		decl := &SignalDecl{Name: name, Kind: KindWire}
		if hasWidth {
			decl.MSB, decl.LSB = msb, lsb
		}

		m.Signals[name] = decl

		expr, err := ParseExpr(exprText)
		if err != nil {
			return 0, err
		}

		if _, exists := m.Assigns[name]; !exists {
			m.AssignOrder = append(m.AssignOrder, name)
		}

		m.Assigns[name] = expr

		_ = width

		return semi + 1, nil
	}

	for _, name := range splitTopLevel(rest, ',') {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		decl := &SignalDecl{Name: name, Kind: KindWire}
		if hasWidth {
			decl.MSB, decl.LSB = msb, lsb
		}

		m.Signals[name] = decl
	}

	return semi + 1, nil
}

// consumeRange strips a leading `[MSB:LSB]` from s, if present.
func consumeRange(s string) (msb, lsb int, ok bool, rest string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return 0, 0, false, s
	}

	end := strings.IndexByte(s, ']')
	if end < 0 {
		return 0, 0, false, s
	}

	inner := s[1:end]
	colon := strings.IndexByte(inner, ':')

	if colon < 0 {
		return 0, 0, false, s
	}

	mv, err1 := strconv.Atoi(strings.TrimSpace(inner[:colon]))
	lv, err2 := strconv.Atoi(strings.TrimSpace(inner[colon+1:]))

	if err1 != nil || err2 != nil {
		return 0, 0, false, s
	}

	return mv, lv, true, strings.TrimSpace(s[end+1:])
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}

	return v
}

func parseRegOrMemDecl(m *ModuleIR, body string, pos int) (int, error) {
	kw := "reg"
	if hasWordAt(body, pos, "logic") {
		kw = "logic"
	}

	semi := indexTopLevel(body, ';', pos)
	if semi < 0 {
		return 0, newErr(InvalidSource, "", "unterminated reg declaration")
	}

	stmt := strings.TrimSpace(body[pos+len(kw) : semi])
	stmt = strings.TrimPrefix(stmt, "signed ")
	stmt = strings.TrimPrefix(stmt, "unsigned ")
	stmt = strings.TrimSpace(stmt)

	packedMSB, packedLSB, hasPacked, rest := consumeRange(stmt)

	unpackedMSB, unpackedLSB, hasUnpacked, rest2 := consumeRangeAfterName(rest)

	if hasUnpacked {
		// Memory declaration: name [packed] [unpacked];
		name := strings.TrimSpace(rest2)
		wordWidth := 1

		if hasPacked {
			wordWidth = absInt(packedMSB-packedLSB) + 1
		}

		depth := absInt(unpackedMSB-unpackedLSB) + 1

		m.Memories[name] = &MemoryDecl{Name: name, WordWidth: wordWidth, Depth: depth}

		return semi + 1, nil
	}

	for _, name := range splitTopLevel(rest, ',') {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		decl := &SignalDecl{Name: name, Kind: KindReg}
		if hasPacked {
			decl.MSB, decl.LSB = packedMSB, packedLSB
		}

		m.Signals[name] = decl
	}

	return semi + 1, nil
}

// consumeRangeAfterName looks for `NAME [MSB:LSB]` and, if present, returns
// the range and the name alone; otherwise ok is false and rest is
// unchanged.
func consumeRangeAfterName(s string) (msb, lsb int, ok bool, rest string) {
	b := strings.IndexByte(s, '[')
	if b < 0 {
		return 0, 0, false, s
	}

	e := strings.IndexByte(s[b:], ']')
	if e < 0 {
		return 0, 0, false, s
	}

	e += b

	inner := s[b+1 : e]
	colon := strings.IndexByte(inner, ':')

	if colon < 0 {
		return 0, 0, false, s
	}

	mv, err1 := strconv.Atoi(strings.TrimSpace(inner[:colon]))
	lv, err2 := strconv.Atoi(strings.TrimSpace(inner[colon+1:]))

	if err1 != nil || err2 != nil {
		return 0, 0, false, s
	}

	name := strings.TrimSpace(s[:b])

	return mv, lv, true, name
}

func parseContinuousAssign(m *ModuleIR, body string, pos int) (int, error) {
	semi := indexTopLevel(body, ';', pos)
	if semi < 0 {
		return 0, newErr(InvalidSource, "", "unterminated assign statement")
	}

	stmt := strings.TrimSpace(body[pos+len("assign") : semi])

	eq := topLevelOp(stmt, "=")
	if eq < 0 {
		return 0, newErr(InvalidSource, stmt, "malformed assign statement")
	}

	lhs := strings.TrimSpace(stmt[:eq])
	rhsText := strings.TrimSpace(stmt[eq+1:])

	rhs, err := ParseExpr(rhsText)
	if err != nil {
		return 0, err
	}

	switch {
	case strings.HasPrefix(lhs, "{") && strings.HasSuffix(lhs, "}"):
		inner := lhs[1 : len(lhs)-1]

		var targets []string

		for _, t := range splitTopLevel(inner, ',') {
			targets = append(targets, strings.TrimSpace(t))
		}

		m.ConcatAssigns = append(m.ConcatAssigns, &ConcatAssign{Targets: targets, Expr: rhs})
	default:
		bracket := strings.IndexByte(lhs, '[')

		if bracket >= 0 && strings.HasSuffix(lhs, "]") {
			name := lhs[:bracket]
			inner := lhs[bracket+1 : len(lhs)-1]
			colon := strings.IndexByte(inner, ':')

			if colon >= 0 {
				msb, err1 := strconv.Atoi(strings.TrimSpace(inner[:colon]))
				lsb, err2 := strconv.Atoi(strings.TrimSpace(inner[colon+1:]))

				if err1 != nil || err2 != nil {
					return 0, newErr(InvalidSource, lhs, "malformed slice assignment target")
				}

				m.SliceAssigns = append(m.SliceAssigns, &SliceAssign{Target: name, MSB: msb, LSB: lsb, Expr: rhs})

				return semi + 1, nil
			}
			// Bit-select assign target: degrade to a single-bit slice.
			idx, err := strconv.Atoi(strings.TrimSpace(inner))
			if err == nil {
				m.SliceAssigns = append(m.SliceAssigns, &SliceAssign{Target: name, MSB: idx, LSB: idx, Expr: rhs})

				return semi + 1, nil
			}
		}

		if _, exists := m.Assigns[lhs]; !exists {
			m.AssignOrder = append(m.AssignOrder, lhs)
		}

		m.Assigns[lhs] = rhs
	}

	return semi + 1, nil
}

func parseInstantiation(m *ModuleIR, body string, pos int) (int, error) {
	child, p1 := readIdent(body, pos)
	if child == "" {
		return 0, newErr(InvalidSource, body[pos:], "expected instantiation")
	}

	for p1 < len(body) && body[p1] == ' ' {
		p1++
	}

	instName, p2 := readIdent(body, p1)
	if instName == "" {
		return 0, newErr(InvalidSource, body[pos:], "malformed instantiation")
	}

	for p2 < len(body) && body[p2] == ' ' {
		p2++
	}

	if p2 >= len(body) || body[p2] != '(' {
		return 0, newErr(InvalidSource, body[pos:], "malformed instantiation")
	}

	close, err := matchDelim(body, p2)
	if err != nil {
		return 0, err
	}

	semi := indexTopLevel(body, ';', close+1)
	if semi < 0 {
		return 0, newErr(InvalidSource, body[pos:], "unterminated instantiation")
	}

	inst := &Instantiation{Child: child, Instance: instName, Ports: make(map[string]PortRef)}

	for _, conn := range splitTopLevel(body[p2+1:close], ',') {
		conn = strings.TrimSpace(conn)
		if conn == "" {
			continue
		}

		if !strings.HasPrefix(conn, ".") {
			return 0, newErr(UnresolvedSignal, conn, "malformed port connection")
		}

		op := strings.IndexByte(conn, '(')
		if op < 0 || !strings.HasSuffix(conn, ")") {
			return 0, newErr(UnresolvedSignal, conn, "malformed port connection")
		}

		portName := strings.TrimSpace(conn[1:op])
		rhs := strings.TrimSpace(conn[op+1 : len(conn)-1])

		ref, err := parsePortRef(rhs)
		if err != nil {
			return 0, err
		}

		inst.Ports[portName] = ref
		inst.PortOrder = append(inst.PortOrder, portName)
	}

	m.Instances = append(m.Instances, inst)

	return semi + 1, nil
}

func parsePortRef(s string) (PortRef, error) {
	if strings.ContainsRune(s, '\'') {
		lit, err := parseSizedLiteral(s)
		if err != nil {
			return PortRef{}, err
		}

		il := lit.(*IntLit)

		return PortRef{Kind: PortLiteral, Literal: il.Value, Width: il.Width}, nil
	}

	bracket := strings.IndexByte(s, '[')
	if bracket < 0 {
		return PortRef{Kind: PortBare, Signal: s}, nil
	}

	if !strings.HasSuffix(s, "]") {
		return PortRef{}, newErr(UnresolvedSignal, s, "malformed port reference")
	}

	name := s[:bracket]
	inner := s[bracket+1 : len(s)-1]
	colon := strings.IndexByte(inner, ':')

	if colon >= 0 {
		msb, err1 := strconv.Atoi(strings.TrimSpace(inner[:colon]))
		lsb, err2 := strconv.Atoi(strings.TrimSpace(inner[colon+1:]))

		if err1 != nil || err2 != nil {
			return PortRef{}, newErr(UnresolvedSignal, s, "malformed slice reference")
		}

		return PortRef{Kind: PortSlice, Signal: name, MSB: msb, LSB: lsb}, nil
	}

	idx, err := strconv.Atoi(strings.TrimSpace(inner))
	if err != nil {
		return PortRef{}, newErr(UnresolvedSignal, s, "malformed bit-select reference")
	}

	return PortRef{Kind: PortBit, Signal: name, MSB: idx, LSB: idx}, nil
}

func readIdent(s string, pos int) (string, int) {
	start := pos
	for pos < len(s) && isIdentByte(s[pos]) {
		pos++
	}

	return s[start:pos], pos
}

func parseSeqBlock(m *ModuleIR, body string, pos int, order int) (int, error) {
	p := pos + len("always_ff")

	for p < len(body) && body[p] == ' ' {
		p++
	}

	if p >= len(body) || body[p] != '@' {
		return 0, newErr(InvalidSource, body[pos:], "always_ff missing sensitivity list")
	}

	p++

	for p < len(body) && body[p] == ' ' {
		p++
	}

	if p >= len(body) || body[p] != '(' {
		return 0, newErr(InvalidSource, body[pos:], "always_ff missing sensitivity list")
	}

	close, err := matchDelim(body, p)
	if err != nil {
		return 0, err
	}

	sens := strings.TrimSpace(body[p+1 : close])

	negedge := false
	clock := sens

	switch {
	case strings.HasPrefix(sens, "posedge"):
		clock = strings.TrimSpace(sens[len("posedge"):])
	case strings.HasPrefix(sens, "negedge"):
		negedge = true
		clock = strings.TrimSpace(sens[len("negedge"):])
	}

	m.Clocks[clock] = true

	stmt, next, err := readProceduralBody(body, close+1, m.Memories)
	if err != nil {
		return 0, err
	}

	m.SeqBlocks = append(m.SeqBlocks, &SeqBlock{Clock: clock, Negedge: negedge, Body: stmt, Order: order})

	return next, nil
}

func parseCombBlock(m *ModuleIR, body string, pos int, order int) (int, error) {
	bodyStart := pos + len("always_comb")

	stmt, next, err := readProceduralBody(body, bodyStart, m.Memories)
	if err != nil {
		return 0, err
	}

	m.CombBlocks = append(m.CombBlocks, &CombBlock{Body: stmt, Order: order})

	return next, nil
}

// readProceduralBody skips leading whitespace at pos, then parses either a
// begin/end block or a single ';'-terminated statement.
func readProceduralBody(body string, pos int, mems map[string]*MemoryDecl) (Stmt, int, error) {
	for pos < len(body) && body[pos] == ' ' {
		pos++
	}

	if hasWordAt(body, pos, "begin") {
		end, err := findKeywordEnd(body[pos:], 0)
		if err != nil {
			return nil, 0, err
		}

		stmt, err := parseBlock(body[pos+len("begin"):pos+end], mems)
		if err != nil {
			return nil, 0, err
		}

		return stmt, pos + end + len("end"), nil
	}

	stmt, next, err := parseOneStatement(body, pos, mems)
	if err != nil {
		return nil, 0, err
	}

	return stmt, next, nil
}
