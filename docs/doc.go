// Package docs provides OpenAPI documentation.
//
// Folio API
//
//	@title			Folio API
//	@version		1.0
//	@description	Asynchronous document ingestion API for scanned and text-layer PDFs.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/seforimlab/folio
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http
package docs

//go:generate swag init -g ../cmd/folio/serve.go -o . --parseDependency --parseInternal
