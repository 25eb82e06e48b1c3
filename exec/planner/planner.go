// Package planner translates a parsed SQL statement into an executable
// plan.Node tree, resolving column names against an exec/scope.Scope built
// up as each FROM-clause table (and JOIN) is visited.
package planner

import (
	"fmt"
	"strings"

	"github.com/clstatham/veris/engine"
	"github.com/clstatham/veris/exec/aggregate"
	"github.com/clstatham/veris/exec/expr"
	"github.com/clstatham/veris/exec/join"
	"github.com/clstatham/veris/exec/plan"
	"github.com/clstatham/veris/exec/scope"
	"github.com/clstatham/veris/internal/verrors"
	"github.com/clstatham/veris/sql"
	"github.com/clstatham/veris/types"
)

// Planner builds plans against a single catalog transaction, through which
// it looks up the schemas of the tables that INSERT, DELETE and SELECT
// statements name.
type Planner struct {
	txn *engine.Transaction
}

// New returns a Planner that resolves table lookups through txn.
func New(txn *engine.Transaction) *Planner {
	return &Planner{txn: txn}
}

// Plan translates one parsed statement into a plan.Node.
func (p *Planner) Plan(stmt sql.Statement) (plan.Node, error) {
	switch s := stmt.(type) {
	case *sql.CreateTableStatement:
		return p.planCreateTable(s)
	case *sql.DropTableStatement:
		return &plan.DropTable{Name: s.Name}, nil
	case *sql.InsertStatement:
		return p.planInsert(s)
	case *sql.DeleteStatement:
		return p.planDelete(s)
	case *sql.SelectStatement:
		return p.planSelect(s)
	default:
		return nil, verrors.New(verrors.NotYetSupported, "%T", stmt)
	}
}

func (p *Planner) planCreateTable(stmt *sql.CreateTableStatement) (plan.Node, error) {
	columns := make([]types.Column, len(stmt.Columns))
	for i, c := range stmt.Columns {
		col := types.Column{
			Name:     c.Name,
			DataType: c.DataType,
			Nullable: c.Nullable,
		}
		if c.References != nil {
			col.References = &types.ForeignKey{
				Table:   c.References.Table,
				Columns: []string{c.References.Column},
			}
			col.HasSecondaryIndex = true
		}
		columns[i] = col
	}
	table := &types.Table{
		Name:            stmt.Name,
		PrimaryKeyIndex: stmt.PrimaryKeyIndex,
		Columns:         columns,
	}
	return &plan.CreateTable{Table: table}, nil
}

func (p *Planner) planInsert(stmt *sql.InsertStatement) (plan.Node, error) {
	table, err := p.txn.GetTable(stmt.Table)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, verrors.New(verrors.TableDoesNotExist, "%s", stmt.Table)
	}
	rows := make([][]expr.Expr, len(stmt.Values))
	for i, row := range stmt.Values {
		exprs := make([]expr.Expr, len(row))
		for j, e := range row {
			built, err := buildExpr(e, scope.New())
			if err != nil {
				return nil, err
			}
			exprs[j] = built
		}
		rows[i] = exprs
	}
	return &plan.Insert{Table: table, Source: &plan.Values{Rows: rows}}, nil
}

func (p *Planner) planDelete(stmt *sql.DeleteStatement) (plan.Node, error) {
	table, err := p.txn.GetTable(stmt.Table)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, verrors.New(verrors.TableDoesNotExist, "%s", stmt.Table)
	}
	s, err := scope.FromTable(table, nil)
	if err != nil {
		return nil, err
	}
	var predicate expr.Expr
	if stmt.Where != nil {
		predicate, err = buildExpr(stmt.Where, s)
		if err != nil {
			return nil, err
		}
	}
	return &plan.Delete{Table: table, Predicate: predicate}, nil
}

func (p *Planner) planSelect(stmt *sql.SelectStatement) (plan.Node, error) {
	s := scope.New()
	var node plan.Node = &plan.Nothing{}
	var perm []int

	for _, ref := range stmt.From {
		tablePlan, tablePerm, err := p.planTableRef(ref, s)
		if err != nil {
			return nil, err
		}
		if _, isNothing := node.(*plan.Nothing); isNothing {
			node = tablePlan
			perm = tablePerm
		} else {
			perm = concatPerm(perm, tablePerm)
			node = &plan.Join{Left: node, Right: tablePlan, Type: join.Inner}
		}
	}

	// Everything below is built against s's flat scope-index order, but a
	// RIGHT JOIN rewrite upstream may have made node's physical column order
	// diverge from it; remap each expression to node's real layout before
	// attaching it to the plan.
	remap := scopeRemapper(perm, s.Len())

	if stmt.Where != nil {
		predicate, err := buildExpr(stmt.Where, s)
		if err != nil {
			return nil, err
		}
		node = &plan.Filter{Source: node, Predicate: remap(predicate)}
	}

	var groupBy []expr.Expr
	var groupByLabels []types.ColumnLabel
	for _, g := range stmt.GroupBy {
		e, err := buildExpr(g, s)
		if err != nil {
			return nil, err
		}
		col, ok := e.(expr.Column)
		if !ok {
			return nil, verrors.New(verrors.NotYetSupported, "non-column GROUP BY expression")
		}
		// Index here is still a scope index; resolve its label before
		// remapping e to node's physical column order.
		label, err := s.GetColumnLabel(col.Index)
		if err != nil {
			return nil, err
		}
		groupByLabels = append(groupByLabels, label)
		groupBy = append(groupBy, remap(e))
	}

	aggregates, err := p.collectAggregates(stmt.Projection, s, remap)
	if err != nil {
		return nil, err
	}

	aggregated := len(groupBy) > 0 || len(aggregates) > 0
	if aggregated {
		child := s.Spawn()
		for _, label := range groupByLabels {
			if _, err := child.AddColumn(label); err != nil {
				return nil, err
			}
		}

		var aggs []aggregate.Aggregate
		for _, ag := range aggregates {
			if _, err := child.AddAggregate(ag.key, ag.label); err != nil {
				return nil, err
			}
			aggs = append(aggs, ag.aggregate)
		}

		s = child
		node = &plan.Aggregate{Source: node, GroupBy: groupBy, Aggregates: aggs}
	}

	var columns []expr.Expr
	var aliases []types.ColumnLabel
	for _, item := range stmt.Projection {
		if item.Wildcard {
			for i := 0; i < node.NumColumns(); i++ {
				columns = append(columns, expr.NewColumn(i))
				aliases = append(aliases, node.ColumnLabel(i))
			}
			continue
		}
		built, err := buildExpr(item.Expr, s)
		if err != nil {
			return nil, err
		}
		label := types.ColumnLabel{}
		if item.Alias != "" {
			label = types.NewUnqualifiedLabel(item.Alias)
		} else if col, ok := built.(expr.Column); ok {
			label, err = s.GetColumnLabel(col.Index)
			if err != nil {
				return nil, err
			}
		}
		// Post-aggregate, s (== child) already mirrors node's physical
		// column order 1:1; only the pre-aggregate scope can diverge from
		// node's physical layout (a RIGHT JOIN rewrite upstream).
		if !aggregated {
			built = remap(built)
		}
		columns = append(columns, built)
		aliases = append(aliases, label)
	}
	if len(columns) == 0 {
		return nil, verrors.New(verrors.NotYetSupported, "empty projection")
	}

	// A bare `SELECT *` need not materialize a Project node; any other
	// projection (explicit columns, or `*` combined with expressions)
	// still does.
	if isBareWildcard(stmt.Projection) {
		return &plan.Query{Source: node}, nil
	}

	node = &plan.Project{Source: node, Columns: columns, Aliases: aliases}
	return &plan.Query{Source: node}, nil
}

func isBareWildcard(items []sql.SelectItem) bool {
	return len(items) == 1 && items[0].Wildcard
}

// identityPerm returns a physical-position -> scope-index map for n columns
// freshly appended to a scope that already held offset columns.
func identityPerm(n, offset int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = offset + i
	}
	return perm
}

// invertPerm turns a physical-index -> scope-index map into a
// scope-index -> physical-index map sized to the full scope.
func invertPerm(physToScope []int, scopeLen int) []int {
	inv := make([]int, scopeLen)
	for phys, sc := range physToScope {
		inv[sc] = phys
	}
	return inv
}

func concatPerm(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// remapScopeExpr rewrites e (built against scope indices spanning a node
// whose physical column order is described by physToScope) so its Column
// references use that node's actual physical indices. Needed whenever a
// RIGHT JOIN rewrite has made physical order diverge from scope-accumulation
// order; a no-op (identity permutation) otherwise.
func remapScopeExpr(e expr.Expr, physToScope []int, scopeLen int) expr.Expr {
	if e == nil {
		return nil
	}
	scopeToPhys := invertPerm(physToScope, scopeLen)
	return expr.RemapColumns(e, func(i int) int { return scopeToPhys[i] })
}

// scopeRemapper builds a reusable scope-index -> physical-index rewrite
// function from a node's physToScope permutation.
func scopeRemapper(physToScope []int, scopeLen int) func(expr.Expr) expr.Expr {
	scopeToPhys := invertPerm(physToScope, scopeLen)
	return func(e expr.Expr) expr.Expr {
		if e == nil {
			return nil
		}
		return expr.RemapColumns(e, func(i int) int { return scopeToPhys[i] })
	}
}

// planTableRef plans one FROM-clause table and its trailing JOINs, returning
// the physical-index -> scope-index permutation of the resulting node's
// columns alongside it.
func (p *Planner) planTableRef(ref sql.TableRef, s *scope.Scope) (plan.Node, []int, error) {
	node, perm, err := p.planScan(ref.Table, ref.Alias, s)
	if err != nil {
		return nil, nil, err
	}
	for _, j := range ref.Joins {
		node, perm, err = p.planJoin(node, perm, j, s)
		if err != nil {
			return nil, nil, err
		}
	}
	return node, perm, nil
}

func (p *Planner) planScan(name, alias string, s *scope.Scope) (plan.Node, []int, error) {
	table, err := p.txn.GetTable(name)
	if err != nil {
		return nil, nil, err
	}
	if table == nil {
		return nil, nil, verrors.New(verrors.TableDoesNotExist, "%s", name)
	}
	var aliasPtr *string
	if alias != "" {
		aliasPtr = &alias
	}
	offset := s.Len()
	if err := s.AddTable(table, aliasPtr); err != nil {
		return nil, nil, err
	}
	return &plan.Scan{Table: table, Alias: alias}, identityPerm(len(table.Columns), offset), nil
}

func (p *Planner) planJoin(left plan.Node, leftPerm []int, j sql.Join, s *scope.Scope) (plan.Node, []int, error) {
	right, rightPerm, err := p.planScan(j.Table, j.Alias, s)
	if err != nil {
		return nil, nil, err
	}

	var on expr.Expr
	if j.On != nil {
		on, err = buildExpr(j.On, s)
		if err != nil {
			return nil, nil, err
		}
	}

	var node *plan.Join
	var perm []int
	switch j.Kind {
	case sql.JoinRight:
		// Rewritten to a LEFT JOIN with the sides swapped, rather than
		// implementing a distinct right-outer strategy.
		perm = concatPerm(rightPerm, leftPerm)
		node = &plan.Join{Left: right, Right: left, Type: join.Left}
	case sql.JoinLeft:
		perm = concatPerm(leftPerm, rightPerm)
		node = &plan.Join{Left: left, Right: right, Type: join.Left}
	default:
		perm = concatPerm(leftPerm, rightPerm)
		node = &plan.Join{Left: left, Right: right, Type: join.Inner}
	}

	// on was resolved against the (flat) scope index space; remap it to this
	// join's actual physical column layout, which only diverges from scope
	// order once an earlier RIGHT JOIN has swapped sides.
	node.On = remapScopeExpr(on, perm, s.Len())
	return node, perm, nil
}

type collectedAggregate struct {
	key       string
	label     types.ColumnLabel
	aggregate aggregate.Aggregate
}

func (p *Planner) collectAggregates(items []sql.SelectItem, s *scope.Scope, remap func(expr.Expr) expr.Expr) ([]collectedAggregate, error) {
	var out []collectedAggregate
	seen := map[string]bool{}
	for _, item := range items {
		if item.Wildcard {
			continue
		}
		call, ok := item.Expr.(sql.Call)
		if !ok {
			continue
		}
		agg, err := buildAggregate(call, s, remap)
		if err != nil {
			return nil, err
		}
		if agg == nil {
			continue
		}
		key := canonicalCallKey(call)
		if seen[key] {
			continue
		}
		seen[key] = true
		label := types.ColumnLabel{}
		if len(call.Args) == 1 {
			if name, ok := call.Args[0].(sql.Name); ok {
				if l, err := labelForName(name, s); err == nil {
					label = l
				}
			}
		}
		out = append(out, collectedAggregate{key: key, label: label, aggregate: *agg})
	}
	return out, nil
}

func isAggregateFunc(name string) bool {
	switch strings.ToLower(name) {
	case "avg", "count", "max", "min", "sum":
		return true
	default:
		return false
	}
}

func buildAggregate(call sql.Call, s *scope.Scope, remap func(expr.Expr) expr.Expr) (*aggregate.Aggregate, error) {
	if !isAggregateFunc(call.Name) {
		return nil, nil
	}
	var arg expr.Expr
	var err error
	switch {
	case call.Wildcard:
		// COUNT(*) counts rows regardless of nullability; a constant
		// never evaluates to Null, which is exactly the behavior wanted.
		arg = expr.NewConstant(types.NewInt(0))
	case len(call.Args) == 1:
		arg, err = buildExpr(call.Args[0], s)
		if err != nil {
			return nil, err
		}
		arg = remap(arg)
	default:
		return nil, verrors.New(verrors.NotYetSupported, "aggregate function with %d arguments", len(call.Args))
	}

	var fn aggregate.Func
	switch strings.ToLower(call.Name) {
	case "avg":
		fn = aggregate.Average
	case "count":
		fn = aggregate.Count
	case "max":
		fn = aggregate.Max
	case "min":
		fn = aggregate.Min
	case "sum":
		fn = aggregate.Sum
	}
	return &aggregate.Aggregate{Func: fn, Expr: arg}, nil
}

func canonicalCallKey(call sql.Call) string {
	var sb strings.Builder
	sb.WriteString(strings.ToUpper(call.Name))
	sb.WriteByte('(')
	if call.Wildcard {
		sb.WriteByte('*')
	} else {
		for i, a := range call.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%v", a)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

func labelForName(name sql.Name, s *scope.Scope) (types.ColumnLabel, error) {
	index, err := resolveName(name, s)
	if err != nil {
		return types.ColumnLabel{}, err
	}
	return s.GetColumnLabel(index)
}

func resolveName(name sql.Name, s *scope.Scope) (int, error) {
	switch len(name.Parts) {
	case 1:
		if index, ok := s.GetColumnIndex(nil, name.Parts[0]); ok {
			return index, nil
		}
		return 0, verrors.New(verrors.InvalidColumnLabel, "%s", name.Parts[0])
	case 2:
		if index, ok := s.GetColumnIndex(&name.Parts[0], name.Parts[1]); ok {
			return index, nil
		}
		return 0, verrors.New(verrors.InvalidColumnLabel, "%s.%s", name.Parts[0], name.Parts[1])
	default:
		return 0, verrors.New(verrors.InvalidColumnLabel, "%v", name.Parts)
	}
}

func buildExpr(e sql.Expr, s *scope.Scope) (expr.Expr, error) {
	switch n := e.(type) {
	case sql.Literal:
		return expr.NewConstant(n.Value), nil
	case sql.Name:
		index, err := resolveName(n, s)
		if err != nil {
			return nil, err
		}
		return expr.NewColumn(index), nil
	case sql.Call:
		key := canonicalCallKey(n)
		if index, ok := s.GetAggregateIndex(key); ok {
			return expr.NewColumn(index), nil
		}
		return nil, verrors.New(verrors.NotYetSupported, "function %s", n.Name)
	case sql.BinaryExpr:
		left, err := buildExpr(n.Left, s)
		if err != nil {
			return nil, err
		}
		right, err := buildExpr(n.Right, s)
		if err != nil {
			return nil, err
		}
		op, err := binaryOp(n.Op)
		if err != nil {
			return nil, err
		}
		return expr.NewBinary(left, op, right), nil
	default:
		return nil, verrors.New(verrors.NotYetSupported, "%T", e)
	}
}

func binaryOp(op string) (expr.BinaryOp, error) {
	switch op {
	case "+":
		return expr.Add, nil
	case "-":
		return expr.Subtract, nil
	case "*":
		return expr.Multiply, nil
	case "/":
		return expr.Divide, nil
	case "%":
		return expr.Modulus, nil
	case "AND":
		return expr.And, nil
	case "OR":
		return expr.Or, nil
	case "=":
		return expr.Equal, nil
	case "<>":
		return expr.NotEqual, nil
	case ">":
		return expr.GreaterThan, nil
	case "<":
		return expr.LessThan, nil
	case ">=":
		return expr.GreaterThanOrEqual, nil
	case "<=":
		return expr.LessThanOrEqual, nil
	default:
		return 0, verrors.New(verrors.NotYetSupported, "operator %q", op)
	}
}
