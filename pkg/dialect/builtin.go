package dialect

// Builtin dialects. ANSI is the bare core grammar; duckdb and postgres add
// the extensions their engines accept. QUALIFY at Default mirrors DuckDB,
// which treats it as standard; Postgres only gains ILIKE.

var standardAggregates = []string{
	"sum", "count", "avg", "min", "max",
}

var ansi = NewDialect("ansi").
	Identifiers(NormUpper).
	Aggregates(standardAggregates...).
	Build()

var duckdb = NewDialect("duckdb").
	Identifiers(NormLower).
	Operator("ILIKE", Default, PrecComparison).
	Keyword("QUALIFY", Default).
	Aggregates(standardAggregates...).
	Aggregates("string_agg", "any_value", "median").
	Build()

var postgres = NewDialect("postgres").
	Identifiers(NormLower).
	Operator("ILIKE", Default, PrecComparison).
	Aggregates(standardAggregates...).
	Aggregates("string_agg", "bool_and", "bool_or").
	Build()

func init() {
	Register(ansi)
	Register(duckdb)
	Register(postgres)
}
