// # Process configuration
//
// A YAML file configures the resolver policy, network limits, cloud storage,
// logging and tracing. Values may reference the environment with ${VAR_NAME}:
//
//	import:
//	  file_enabled: true
//	  dir: /var/lib/import
//	network:
//	  read_timeout: 30s
//	  bearer_token: ${CSVLOAD_TOKEN}
//	s3:
//	  region: eu-west-1
//	logging:
//	  level: debug
//	load:
//	  sep: TAB
//	  nullValues: ["", "NA"]
//
// Load it with LoadFile, which starts from NewConfig defaults:
//
//	cfg, err := config.LoadFile("csvload.yaml")
//
// # Load options
//
// LoadConfig carries the options of one load. Keys follow the public
// parameter names:
//
//	header       first row holds column names (default true)
//	sep          separator character or TAB, COMMA, SEMICOLON, PIPE, SPACE (default ",")
//	quoteChar    quote character, "\u0000" or NONE disables quoting (default `"`)
//	arraySep     separator of array columns (default ";")
//	nullValues   raw values read as null (default [""])
//	failOnError  abort on cast failure (default true)
//	skip, limit  row window; limit 0 is unbounded
//	ignore       columns to drop
//	mapping      per-column rules: name, type, array, arraySep, nullValues, ignore
//	results      output shapes: map, list, stringMap, strings
//	encoding     character encoding override
//	compression  codec override: NONE, GZIP, BZIP2, DEFLATE, XZ, ZSTD, LZ4, SNAPPY, S2
//	headers      HTTP request headers
package config
