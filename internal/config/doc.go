// Package config loads and validates the pipeline configuration.
//
// # Configuration Sources
//
// Configuration is layered, later sources overriding earlier ones:
//
//	1. Default values (Default)
//	2. A YAML file, passed explicitly or found at dicommart.yaml or configs/dicommart.yaml
//	3. Environment variables prefixed DICOMMART_
//
// Environment variables follow the section and field names:
//
//	DICOMMART_SOURCE_BUCKET=source-files-raw
//	DICOMMART_SOURCE_PREFIX=lidc_small_dset/
//	DICOMMART_PIPELINE_WORKERS=8
//	DICOMMART_NOTIFY_DRIVER=kafka
//	DICOMMART_NOTIFY_KAFKA_BROKERS=localhost:9092
//
// # Catalog
//
// The catalog names the attributes extracted from every object and the
// datamart categories they are routed into. DefaultCatalog carries the
// stock layout; catalog.file replaces it with a YAML document:
//
//	attributes: [PatientID, StudyInstanceUID, SliceThickness]
//	datamarts:
//	  - name: studyInfo
//	    columns: [StudyInstanceUID, PatientID]
//	    primary_key: StudyInstanceUID
package config
