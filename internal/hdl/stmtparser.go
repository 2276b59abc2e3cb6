package hdl

import "strings"

// parseStmtBody parses a procedural body: either a single `begin ... end`
// block, or a single statement terminated by `;`. mems identifies which
// bare names are memories, used to classify assignment targets.
func parseStmtBody(text string, mems map[string]*MemoryDecl) (Stmt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &EmptyStmt{}, nil
	}

	if hasWordAt(text, 0, "begin") {
		end, err := findKeywordEnd(text, 0)
		if err != nil {
			return nil, err
		}

		inner := text[len("begin"):end]

		return parseBlock(inner, mems)
	}

	return parseSingleStatement(text, mems)
}

// parseBlock parses the (possibly empty) sequence of statements inside a
// begin/end pair.
func parseBlock(text string, mems map[string]*MemoryDecl) (Stmt, error) {
	stmts, err := parseStatementSeq(text, mems)
	if err != nil {
		return nil, err
	}

	return &Block{Children: stmts}, nil
}

// parseStatementSeq parses zero or more statements from text, each being an
// if, case, begin/end block, or assignment.
func parseStatementSeq(text string, mems map[string]*MemoryDecl) ([]Stmt, error) {
	var stmts []Stmt

	pos := 0

	for {
		// Skip whitespace.
		for pos < len(text) && text[pos] == ' ' {
			pos++
		}

		if pos >= len(text) {
			break
		}

		stmt, next, err := parseOneStatement(text, pos, mems)
		if err != nil {
			return nil, err
		}

		stmts = append(stmts, stmt)
		pos = next
	}

	return stmts, nil
}

// parseOneStatement parses exactly one statement starting at pos, returning
// it along with the index immediately after it.
func parseOneStatement(text string, pos int, mems map[string]*MemoryDecl) (Stmt, int, error) {
	rest := text[pos:]

	switch {
	case hasWordAt(rest, 0, "begin"):
		end, err := findKeywordEnd(rest, 0)
		if err != nil {
			return nil, 0, err
		}

		blk, err := parseBlock(rest[len("begin"):end], mems)
		if err != nil {
			return nil, 0, err
		}

		return blk, pos + end + len("end"), nil
	case hasWordAt(rest, 0, "if"):
		return parseIf(text, pos, mems)
	case hasWordAt(rest, 0, "case"):
		return parseCase(text, pos, mems)
	default:
		semi := indexTopLevel(rest, ';', 0)
		if semi < 0 {
			return nil, 0, newErr(MalformedStatement, rest, "unterminated statement")
		}

		stmt, err := parseAssignOrRaw(strings.TrimSpace(rest[:semi]), mems)
		if err != nil {
			return nil, 0, err
		}

		return stmt, pos + semi + 1, nil
	}
}

// parseSingleStatement parses exactly one statement and requires it to
// consume the whole of text (trailing ';' optional, already stripped by
// caller in most paths).
func parseSingleStatement(text string, mems map[string]*MemoryDecl) (Stmt, error) {
	stmt, next, err := parseOneStatement(text, 0, mems)
	if err != nil {
		return nil, err
	}

	trailing := strings.TrimSpace(text[next:])
	if trailing != "" {
		// Multiple bare statements without begin/end — treat as a block.
		rest, err := parseStatementSeq(text[next:], mems)
		if err != nil {
			return nil, err
		}

		return &Block{Children: append([]Stmt{stmt}, rest...)}, nil
	}

	return stmt, nil
}

// parseIf parses `if ( cond ) S1 [else S2]` starting at pos ("if" at
// text[pos:]). Returns the statement and the index after it.
func parseIf(text string, pos int, mems map[string]*MemoryDecl) (Stmt, int, error) {
	rest := text[pos:]
	open := strings.IndexByte(rest, '(')

	if open < 0 {
		return nil, 0, newErr(MalformedStatement, rest, "if missing condition")
	}

	close, err := matchDelim(rest, open)
	if err != nil {
		return nil, 0, err
	}

	condExpr, err := ParseExpr(rest[open+1 : close])
	if err != nil {
		return nil, 0, err
	}

	thenText := rest[close+1:]

	thenStmt, thenEnd, err := parseOneStatement(text, pos+close+1, mems)
	if err != nil {
		return nil, 0, err
	}

	_ = thenText

	after := text[thenEnd:]
	trimmed := strings.TrimLeft(after, " ")
	skipped := len(after) - len(trimmed)

	if hasWordAt(trimmed, 0, "else") {
		elseStart := thenEnd + skipped + len("else")

		elseStmt, elseEnd, err := parseOneStatement(text, elseStart, mems)
		if err != nil {
			return nil, 0, err
		}

		return &IfStmt{Cond: condExpr, Then: thenStmt, Else: elseStmt}, elseEnd, nil
	}

	return &IfStmt{Cond: condExpr, Then: thenStmt}, thenEnd, nil
}

// parseCase parses `case ( expr ) label(,label)*: S ... [default: S] endcase`
// starting at pos.
func parseCase(text string, pos int, mems map[string]*MemoryDecl) (Stmt, int, error) {
	rest := text[pos:]
	open := strings.IndexByte(rest, '(')

	if open < 0 {
		return nil, 0, newErr(MalformedStatement, rest, "case missing expression")
	}

	close, err := matchDelim(rest, open)
	if err != nil {
		return nil, 0, err
	}

	caseExpr, err := ParseExpr(rest[open+1 : close])
	if err != nil {
		return nil, 0, err
	}

	endcaseRel := indexKeyword(rest, close+1, "endcase")
	if endcaseRel < 0 {
		return nil, 0, newErr(MalformedStatement, rest, "case missing endcase")
	}

	body := rest[close+1 : endcaseRel]

	stmt := &CaseStmt{Expr: caseExpr}

	bpos := 0

	for {
		for bpos < len(body) && body[bpos] == ' ' {
			bpos++
		}

		if bpos >= len(body) {
			break
		}

		if hasWordAt(body, bpos, "default") {
			colon := indexTopLevel(body, ':', bpos)
			if colon < 0 {
				return nil, 0, newErr(MalformedStatement, body, "default missing colon")
			}

			dstmt, dnext, err := parseOneStatement(body, colon+1, mems)
			if err != nil {
				return nil, 0, err
			}

			stmt.Default = dstmt
			bpos = dnext

			continue
		}

		colon := indexTopLevel(body, ':', bpos)
		if colon < 0 {
			return nil, 0, newErr(MalformedStatement, body, "case arm missing colon")
		}

		labelParts := splitTopLevel(body[bpos:colon], ',')

		var labels []Expr

		for _, lp := range labelParts {
			le, err := ParseExpr(strings.TrimSpace(lp))
			if err != nil {
				return nil, 0, err
			}

			labels = append(labels, le)
		}

		astmt, anext, err := parseOneStatement(body, colon+1, mems)
		if err != nil {
			return nil, 0, err
		}

		stmt.Arms = append(stmt.Arms, CaseArm{Labels: labels, Body: astmt})
		bpos = anext
	}

	return stmt, pos + endcaseRel + len("endcase"), nil
}

// indexKeyword finds the keyword's start index (absolute in text), scanning
// from `from`, or -1 if not found.
func indexKeyword(text string, from int, word string) int {
	for i := from; i+len(word) <= len(text); i++ {
		if hasWordAt(text, i, word) {
			return i
		}
	}

	return -1
}

// parseAssignOrRaw parses `target = rhs` or `target <= rhs` (the ';' already
// stripped). Anything else becomes an opaque RawStmt no-op, per the
// forward-compatible parser policy.
func parseAssignOrRaw(stmt string, mems map[string]*MemoryDecl) (Stmt, error) {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return &EmptyStmt{}, nil
	}

	// Find '<=' or a bare '=' (not '==', '<=', '>=', '!=') at top level.
	nbPos := topLevelOp(stmt, "<=")
	if nbPos >= 0 {
		target, err := parseTarget(strings.TrimSpace(stmt[:nbPos]), mems)
		if err != nil {
			return &RawStmt{Text: stmt}, nil
		}

		rhs, err := ParseExpr(strings.TrimSpace(stmt[nbPos+2:]))
		if err != nil {
			return nil, err
		}

		return &NonblockingAssign{Target: target, Rhs: rhs}, nil
	}

	eqPos := topLevelBareEquals(stmt)
	if eqPos >= 0 {
		target, err := parseTarget(strings.TrimSpace(stmt[:eqPos]), mems)
		if err != nil {
			return &RawStmt{Text: stmt}, nil
		}

		rhs, err := ParseExpr(strings.TrimSpace(stmt[eqPos+1:]))
		if err != nil {
			return nil, err
		}

		return &BlockingAssign{Target: target, Rhs: rhs}, nil
	}

	return &RawStmt{Text: stmt}, nil
}

func topLevelOp(s, op string) int {
	depth := 0

	for i := 0; i+len(op) <= len(s); i++ {
		c := s[i]

		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}

		if depth == 0 && s[i:i+len(op)] == op {
			return i
		}
	}

	return -1
}

func topLevelBareEquals(s string) int {
	depth := 0

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}

		if depth == 0 && c == '=' {
			prev := byte(0)
			if i > 0 {
				prev = s[i-1]
			}

			next := byte(0)
			if i+1 < len(s) {
				next = s[i+1]
			}

			if prev != '<' && prev != '>' && prev != '=' && prev != '!' && next != '=' {
				return i
			}
		}
	}

	return -1
}

// parseTarget classifies an assignment LHS per spec.md §3's Target variant.
func parseTarget(s string, mems map[string]*MemoryDecl) (Target, error) {
	s = strings.TrimSpace(s)

	bracket := strings.IndexByte(s, '[')
	if bracket < 0 {
		return &WholeTarget{Signal: s}, nil
	}

	if !strings.HasSuffix(s, "]") {
		return nil, newErr(MalformedStatement, s, "malformed indexed target")
	}

	name := s[:bracket]
	inner := s[bracket+1 : len(s)-1]

	if mems != nil {
		if _, ok := mems[name]; ok {
			idx, err := ParseExpr(inner)
			if err != nil {
				return nil, err
			}

			return &MemoryWordTarget{Memory: name, Index: idx}, nil
		}
	}

	colon := indexTopLevel(inner, ':', 0)
	if colon >= 0 {
		msb, err1 := parseConstInt(strings.TrimSpace(inner[:colon]))
		lsb, err2 := parseConstInt(strings.TrimSpace(inner[colon+1:]))

		if err1 == nil && err2 == nil {
			return &SliceTarget{Signal: name, MSB: msb, LSB: lsb}, nil
		}

		return nil, newErr(MalformedStatement, s, "malformed slice target")
	}

	if idx, err := parseConstInt(inner); err == nil {
		return &BitTarget{Signal: name, Index: idx}, nil
	}

	idxExpr, err := ParseExpr(inner)
	if err != nil {
		return nil, err
	}

	return &IndexedSignalTarget{Signal: name, Index: idxExpr}, nil
}

func parseConstInt(s string) (int, error) {
	e, err := ParseExpr(s)
	if err != nil {
		return 0, err
	}

	lit, ok := e.(*IntLit)
	if !ok {
		return 0, newErr(BadExpression, s, "not a constant")
	}

	return int(lit.Value), nil
}
