package tabular

var (
	ParseValue    = parseValue
	IsNumericCell = isNumericCell
)
