package ftl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ftlgo/ftl/internal/suggest"
	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

// builtinFunc implements target?name. args are already evaluated.
type builtinFunc func(e *Environment, x *parser.BuiltIn, target value.Value, args []value.Value) (value.Value, error)

type builtin struct {
	fn builtinFunc
	// nargs is the exact number of arguments, or -1 for any.
	nargs int
}

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"upper_case":   {stringBuiltin(strings.ToUpper), 0},
		"lower_case":   {stringBuiltin(strings.ToLower), 0},
		"cap_first":    {stringBuiltin(capFirst), 0},
		"uncap_first":  {stringBuiltin(uncapFirst), 0},
		"trim":         {stringBuiltin(strings.TrimSpace), 0},
		"length":       {builtinLength, 0},
		"size":         {builtinSize, 0},
		"string":       {builtinString, -1},
		"c":            {builtinC, 0},
		"number":       {builtinNumber, 0},
		"first":        {builtinFirst, 0},
		"last":         {builtinLast, 0},
		"reverse":      {builtinReverse, 0},
		"sort":         {builtinSort, 0},
		"join":         {builtinJoin, -1},
		"keys":         {builtinKeys, 0},
		"values":       {builtinValues, 0},
		"esc":          {builtinEsc, 0},
		"no_esc":       {builtinNoEsc, 0},
		"contains":     {builtinContains, 1},
		"starts_with":  {builtinStartsWith, 1},
		"ends_with":    {builtinEndsWith, 1},
		"seq_contains": {builtinSeqContains, 1},
		"then":         {builtinThen, 2},
		"namespace":    {builtinNamespace, 0},

		"is_string":        {kindTest(value.KindString), 0},
		"is_number":        {kindTest(value.KindNumber), 0},
		"is_boolean":       {kindTest(value.KindBool), 0},
		"is_date":          {kindTest(value.KindDate), 0},
		"is_hash":          {isTest(value.Value.IsHash), 0},
		"is_sequence":      {isTest(value.Value.IsSeq), 0},
		"is_collection":    {isTest(value.Value.IsCollection), 0},
		"is_markup_output": {kindTest(value.KindMarkup), 0},
		"is_macro":         {kindTest(value.KindMacro), 0},
		"is_function":      {kindTest(value.KindFunction), 0},
		"is_directive":     {isTest(isDirective), 0},
		"is_method":        {kindTest(value.KindMethod), 0},
	}
}

// loopBuiltins read the state of the innermost loop that declared the
// target variable.
var loopBuiltins = map[string]func(s *loopState) value.Value{
	"index":       func(s *loopState) value.Value { return value.FromInt(int64(s.index)) },
	"counter":     func(s *loopState) value.Value { return value.FromInt(int64(s.index + 1)) },
	"has_next":    func(s *loopState) value.Value { return value.FromBool(s.hasNext) },
	"is_first":    func(s *loopState) value.Value { return value.FromBool(s.index == 0) },
	"is_last":     func(s *loopState) value.Value { return value.FromBool(!s.hasNext) },
	"item_parity": func(s *loopState) value.Value {
		if s.index%2 == 0 {
			return value.FromString("odd")
		}
		return value.FromString("even")
	},
}

func builtinNames() []string {
	names := make([]string, 0, len(builtins)+len(loopBuiltins)+1)
	for name := range builtins {
		names = append(names, name)
	}
	for name := range loopBuiltins {
		names = append(names, name)
	}
	names = append(names, "has_content")
	sort.Strings(names)
	return names
}

func (e *Environment) evalBuiltIn(x *parser.BuiltIn) (value.Value, error) {
	if x.Name == "has_content" {
		v, err := e.evalGuarded(x.Target)
		if err != nil {
			return value.Undefined(), err
		}
		return value.FromBool(hasContent(v)), nil
	}

	if lb, ok := loopBuiltins[x.Name]; ok {
		return e.evalLoopBuiltin(x, lb)
	}

	b, ok := builtins[x.Name]
	if !ok {
		err := exprError(ErrUnknownBuiltin, x, "unknown built-in: ?%s", x.Name)
		if s, ok := suggest.Closest(x.Name, builtinNames()); ok {
			err.WithTip(fmt.Sprintf("did you mean ?%s?", s))
		}
		return value.Undefined(), err
	}

	target, err := e.evalExpr(x.Target)
	if err != nil {
		return value.Undefined(), err
	}
	if target.IsUndefined() {
		return value.Undefined(), undefinedError(x.Target)
	}
	if err := materialize(target); err != nil {
		return value.Undefined(), err
	}

	if b.nargs >= 0 && len(x.Args) != b.nargs {
		return value.Undefined(), exprError(ErrInvalidOperation, x,
			"?%s expects %d arguments, but got %d", x.Name, b.nargs, len(x.Args))
	}
	args := make([]value.Value, len(x.Args))
	for i, arg := range x.Args {
		v, err := e.evalExpr(arg)
		if err != nil {
			return value.Undefined(), err
		}
		if v.IsUndefined() {
			return value.Undefined(), undefinedError(arg)
		}
		args[i] = v
	}
	return b.fn(e, x, target, args)
}

func (e *Environment) evalLoopBuiltin(x *parser.BuiltIn, fn func(*loopState) value.Value) (value.Value, error) {
	id, ok := x.Target.(*parser.Identifier)
	if ok {
		for i := len(e.localStack) - 1; i >= 0; i-- {
			if s := e.localStack[i].loop; s != nil && containsName(s.names, id.Name) {
				return fn(s), nil
			}
		}
	}
	return value.Undefined(), exprError(ErrInvalidOperation, x,
		"?%s can only be applied to the variable of an enclosing <#list>, but %s is not one",
		x.Name, parser.CanonicalForm(x.Target))
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func hasContent(v value.Value) bool {
	if isMissing(v) {
		return false
	}
	if s, ok := v.AsString(); ok {
		return s != ""
	}
	if m, ok := v.AsMarkup(); ok {
		return m.Text != ""
	}
	if v.IsSeq() || v.IsHash() {
		n, _ := v.Len()
		return n > 0
	}
	if obj, ok := v.AsObject(); ok {
		if it, ok := obj.(value.IterableObject); ok {
			for range it.Iterate() {
				return true
			}
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Strings
// -----------------------------------------------------------------------------

func stringBuiltin(f func(string) string) builtinFunc {
	return func(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
		s, err := e.stringTarget(x, target)
		if err != nil {
			return value.Undefined(), err
		}
		return value.FromString(f(s)), nil
	}
}

func (e *Environment) stringTarget(x *parser.BuiltIn, target value.Value) (string, error) {
	if s, ok := target.AsString(); ok {
		return s, nil
	}
	if isScalar(target) {
		return e.toPlainText(x.Target, target)
	}
	return "", typeError(ErrNonString, x.Target, "a string", target)
}

func capFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func uncapFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}

func builtinLength(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	s, ok := target.AsString()
	if !ok {
		return value.Undefined(), typeError(ErrNonString, x.Target, "a string", target)
	}
	return value.FromInt(int64(utf8.RuneCountInString(s))), nil
}

// builtinString formats a scalar; for booleans it takes the texts for true
// and false as arguments.
func builtinString(e *Environment, x *parser.BuiltIn, target value.Value, args []value.Value) (value.Value, error) {
	if b, ok := target.AsBool(); ok && len(args) == 2 {
		if b {
			return args[0], nil
		}
		return args[1], nil
	}
	if len(args) != 0 {
		return value.Undefined(), exprError(ErrInvalidOperation, x,
			"?string only takes arguments for booleans, like ?string(\"yes\", \"no\")")
	}
	s, err := e.toPlainText(x.Target, target)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromString(s), nil
}

// builtinC formats for computer consumption, ignoring the locale.
func builtinC(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	if target.IsNumber() {
		return value.FromString(target.Number().String()), nil
	}
	if b, ok := target.AsBool(); ok {
		return value.FromString(strconv.FormatBool(b)), nil
	}
	if s, ok := target.AsString(); ok {
		return value.FromString(s), nil
	}
	return value.Undefined(), typeError(ErrTypeMismatch, x.Target, "a number, boolean or string", target)
}

func builtinNumber(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	if target.IsNumber() {
		return target.Number(), nil
	}
	s, ok := target.AsString()
	if !ok {
		return value.Undefined(), typeError(ErrNonString, x.Target, "a string", target)
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.FromInt(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value.Undefined(), exprError(ErrNonNumerical, x.Target, "%q can't be converted to a number", s)
	}
	return value.FromFloat(f), nil
}

func builtinContains(e *Environment, x *parser.BuiltIn, target value.Value, args []value.Value) (value.Value, error) {
	return stringPredicate(e, x, target, args, strings.Contains)
}

func builtinStartsWith(e *Environment, x *parser.BuiltIn, target value.Value, args []value.Value) (value.Value, error) {
	return stringPredicate(e, x, target, args, strings.HasPrefix)
}

func builtinEndsWith(e *Environment, x *parser.BuiltIn, target value.Value, args []value.Value) (value.Value, error) {
	return stringPredicate(e, x, target, args, strings.HasSuffix)
}

func stringPredicate(e *Environment, x *parser.BuiltIn, target value.Value, args []value.Value, f func(s, sub string) bool) (value.Value, error) {
	s, err := e.stringTarget(x, target)
	if err != nil {
		return value.Undefined(), err
	}
	sub, ok := args[0].AsString()
	if !ok {
		return value.Undefined(), typeError(ErrNonString, x.Args[0], "a string", args[0])
	}
	return value.FromBool(f(s, sub)), nil
}

func builtinEsc(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	if _, ok := target.AsMarkup(); ok {
		return target, nil
	}
	of := e.outputFormat()
	if !of.IsMarkup() {
		return value.Undefined(), exprError(ErrInvalidOperation, x,
			"?esc needs a markup output format, but the output format is %s", of.Name())
	}
	s, err := e.toPlainText(x.Target, target)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromMarkup(of, of.Escape(s)), nil
}

func builtinNoEsc(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	if _, ok := target.AsMarkup(); ok {
		return target, nil
	}
	of := e.outputFormat()
	if !of.IsMarkup() {
		return value.Undefined(), exprError(ErrInvalidOperation, x,
			"?no_esc needs a markup output format, but the output format is %s", of.Name())
	}
	s, err := e.toPlainText(x.Target, target)
	if err != nil {
		return value.Undefined(), err
	}
	return value.FromMarkup(of, s), nil
}

// -----------------------------------------------------------------------------
// Sequences and hashes
// -----------------------------------------------------------------------------

func builtinSize(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	if _, isString := target.AsString(); !isString {
		if n, ok := target.Len(); ok {
			return value.FromInt(int64(n)), nil
		}
	}
	if obj, ok := target.AsObject(); ok {
		if it, ok := obj.(value.IterableObject); ok {
			n := 0
			for range it.Iterate() {
				n++
			}
			return value.FromInt(int64(n)), nil
		}
	}
	return value.Undefined(), typeError(ErrTypeMismatch, x.Target, "a sequence, collection or hash", target)
}

func (e *Environment) seqTarget(x *parser.BuiltIn, target value.Value) ([]value.Value, error) {
	if items, ok := target.AsSlice(); ok {
		return items, nil
	}
	if !target.IsHash() && target.IsCollection() {
		items, _ := target.Iterate()
		return items, nil
	}
	return nil, typeError(ErrTypeMismatch, x.Target, "a sequence", target)
}

func builtinFirst(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	items, err := e.seqTarget(x, target)
	if err != nil || len(items) == 0 {
		return value.Undefined(), err
	}
	return items[0], nil
}

func builtinLast(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	items, err := e.seqTarget(x, target)
	if err != nil || len(items) == 0 {
		return value.Undefined(), err
	}
	return items[len(items)-1], nil
}

func builtinReverse(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	items, err := e.seqTarget(x, target)
	if err != nil {
		return value.Undefined(), err
	}
	out := make([]value.Value, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return value.FromSlice(out), nil
}

func builtinSort(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	items, err := e.seqTarget(x, target)
	if err != nil {
		return value.Undefined(), err
	}
	out := append([]value.Value(nil), items...)
	var cmpErr error
	sort.SliceStable(out, func(i, j int) bool {
		c, err := value.Compare(e.engine(), out[i], out[j])
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		return c < 0
	})
	if cmpErr != nil {
		return value.Undefined(), exprError(ErrTypeMismatch, x.Target, "?sort failed: %s", cmpErr.Error())
	}
	return value.FromSlice(out), nil
}

func builtinJoin(e *Environment, x *parser.BuiltIn, target value.Value, args []value.Value) (value.Value, error) {
	if len(args) == 0 || len(args) > 2 {
		return value.Undefined(), exprError(ErrInvalidOperation, x, "?join expects a separator and an optional empty text")
	}
	sep, ok := args[0].AsString()
	if !ok {
		return value.Undefined(), typeError(ErrNonString, x.Args[0], "a string", args[0])
	}
	items, err := e.seqTarget(x, target)
	if err != nil {
		return value.Undefined(), err
	}
	if len(items) == 0 && len(args) == 2 {
		return args[1], nil
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if isMissing(item) {
			continue
		}
		s, err := e.toPlainText(x.Target, item)
		if err != nil {
			return value.Undefined(), err
		}
		parts = append(parts, s)
	}
	return value.FromString(strings.Join(parts, sep)), nil
}

func builtinSeqContains(e *Environment, x *parser.BuiltIn, target value.Value, args []value.Value) (value.Value, error) {
	items, err := e.seqTarget(x, target)
	if err != nil {
		return value.Undefined(), err
	}
	for _, item := range items {
		if eq, err := value.Equal(e.engine(), item, args[0]); err == nil && eq {
			return value.True(), nil
		}
	}
	return value.False(), nil
}

func builtinKeys(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	h, ok := target.AsHash()
	if !ok {
		return value.Undefined(), typeError(ErrTypeMismatch, x.Target, "a hash", target)
	}
	keys := h.Keys()
	out := make([]value.Value, len(keys))
	for i, k := range keys {
		out[i] = value.FromString(k)
	}
	return value.FromSlice(out), nil
}

func builtinValues(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	h, ok := target.AsHash()
	if !ok {
		return value.Undefined(), typeError(ErrTypeMismatch, x.Target, "a hash", target)
	}
	return value.FromSlice(h.Values()), nil
}

// -----------------------------------------------------------------------------
// Other
// -----------------------------------------------------------------------------

func builtinThen(e *Environment, x *parser.BuiltIn, target value.Value, args []value.Value) (value.Value, error) {
	b, err := e.toBool(x.Target, target)
	if err != nil {
		return value.Undefined(), err
	}
	if b {
		return args[0], nil
	}
	return args[1], nil
}

// builtinNamespace returns the namespace a macro or function was defined
// in.
func builtinNamespace(e *Environment, x *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
	m, ok := target.AsMacro()
	if !ok {
		return value.Undefined(), typeError(ErrTypeMismatch, x.Target, "a macro or function", target)
	}
	mv, ok := m.(*macroValue)
	if !ok {
		return value.Undefined(), nil
	}
	return value.FromObject(mv.ns), nil
}

func kindTest(kind value.Kind) builtinFunc {
	return func(_ *Environment, _ *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
		return value.FromBool(target.Kind() == kind), nil
	}
}

func isTest(test func(value.Value) bool) builtinFunc {
	return func(_ *Environment, _ *parser.BuiltIn, target value.Value, _ []value.Value) (value.Value, error) {
		return value.FromBool(test(target)), nil
	}
}

func isDirective(v value.Value) bool {
	switch v.Kind() {
	case value.KindMacro, value.KindDirective:
		return true
	}
	return false
}
