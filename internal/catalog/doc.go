// Package catalog loads the dork catalog: named categories of search query
// templates read from a YAML or JSON file.
//
// The following category layouts are accepted:
//
//	# plain list of templates
//	login_panels:
//	  - intitle:"login" site:{domain}
//	  - template: inurl:admin
//	    sensitive: false
//
//	# category with metadata
//	exposed_files:
//	  description: Configuration files and backups
//	  risk: high
//	  dorks:
//	    - ext:env "DB_PASSWORD"
//
// A single-element list that wraps a metadata mapping is accepted as well,
// and JSON documents are parsed the same way as YAML.
//
// A category marked sensitive, or declaring a high or critical risk,
// makes every one of its entries sensitive.
package catalog
