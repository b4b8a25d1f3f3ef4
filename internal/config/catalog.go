package config

import (
	"fmt"
	"slices"

	"dicommart/pkg/contracts/domain"
)

// Object source defaults.
const (
	DefaultRawBucket         = "source-files-raw"
	DefaultTransformedBucket = "transformed-file-curated"
	DefaultRootPrefix        = "lidc_small_dset/"
	DefaultRegion            = "eu-north-1"
)

// defaultAttributes is the extraction list. Repeated names are kept as
// configured; extraction keeps the first position of each.
var defaultAttributes = []string{
	"PatientID", "PatientName", "PatientBirthDate", "PatientSex", "PatientAge",
	"EthnicGroup", "PatientWeight", "PatientSize",
	"StudyInstanceUID", "StudyDate", "StudyTime", "AccessionNumber",
	"ReferringPhysicianName", "StudyID", "StudyDescription", "PatientID",
	"SeriesInstanceUID", "SeriesNumber", "Modality", "SeriesDescription",
	"BodyPartExamined", "StudyInstanceUID",
	"SOPInstanceUID", "InstanceNumber", "ImageType", "AcquisitionDate",
	"AcquisitionTime", "PixelSpacing", "SliceThickness", "SliceLocation",
	"FrameOfReferenceUID", "SeriesInstanceUID",
	"Manufacturer", "ManufacturerModelName", "StationName", "DeviceSerialNumber",
	"SoftwareVersions",
	"ProtocolName", "ContrastBolusAgent", "ScanningSequence", "SequenceVariant",
	"ScanOptions",
	"Rows", "Columns", "BitsAllocated", "BitsStored", "HighBit",
	"PixelRepresentation", "PhotometricInterpretationInstitutionName",
	"InstitutionName", "InstitutionalDepartmentName", "FrameOfReferenceUID",
}

// DefaultCatalog returns the stock attribute list and datamart layout.
func DefaultCatalog() CatalogConfig {
	return CatalogConfig{
		Attributes: slices.Clone(defaultAttributes),
		Datamarts: []domain.DatamartCategory{
			{
				Name: "patientInfo",
				Columns: []string{"PatientID", "PatientName", "PatientBirthDate", "PatientSex",
					"PatientAge", "EthnicGroup", "PatientWeight", "PatientSize"},
				PrimaryKey: "PatientID",
			},
			{
				Name: "studyInfo",
				Columns: []string{"StudyInstanceUID", "PatientID", "StudyDate", "StudyTime",
					"AccessionNumber", "ReferringPhysicianName", "StudyID", "StudyDescription"},
				PrimaryKey: "StudyInstanceUID",
			},
			{
				Name: "seriesInfo",
				Columns: []string{"SeriesInstanceUID", "StudyInstanceUID", "SeriesNumber", "Modality",
					"SeriesDescription", "BodyPartExamined"},
				PrimaryKey: "SeriesInstanceUID",
			},
			{
				Name: "imageInfo",
				Columns: []string{"SOPInstanceUID", "SeriesInstanceUID", "InstanceNumber", "ImageType",
					"AcquisitionDate", "AcquisitionTime", "PixelSpacing", "SliceThickness",
					"SliceLocation", "FrameOfReferenceUID"},
				PrimaryKey: "SOPInstanceUID",
			},
			{
				Name: "equipmentInfo",
				Columns: []string{"Manufacturer", "ManufacturerModelName", "StationName",
					"DeviceSerialNumber", "SoftwareVersions"},
			},
			{
				Name: "procedureInfo",
				Columns: []string{"ProtocolName", "ContrastBolusAgent", "ScanningSequence",
					"SequenceVariant", "ScanOptions"},
			},
			{
				Name: "pixelDataInfo",
				Columns: []string{"Rows", "Columns", "BitsAllocated", "BitsStored", "HighBit",
					"PixelRepresentation", "PhotometricInterpretationInstitutionName"},
			},
			{
				Name:    "miscInfo",
				Columns: []string{"InstitutionName", "InstitutionalDepartmentName", "FrameOfReferenceUID"},
			},
		},
	}
}

// Validate checks the catalog is internally consistent.
func (c CatalogConfig) Validate() error {
	if len(c.Attributes) == 0 {
		return fmt.Errorf("catalog has no attributes")
	}
	for _, required := range []string{domain.AttrPatientID, domain.AttrStudyInstanceUID} {
		if !slices.Contains(c.Attributes, required) {
			return fmt.Errorf("catalog attributes must include %s", required)
		}
	}

	names := make(map[string]struct{}, len(c.Datamarts))
	for _, cat := range c.Datamarts {
		if err := cat.Validate(); err != nil {
			return err
		}
		if _, dup := names[cat.Name]; dup {
			return fmt.Errorf("datamart %s is defined twice", cat.Name)
		}
		names[cat.Name] = struct{}{}
	}
	return nil
}

// PrimaryKeys returns the primary key of each keyed datamart.
func (c CatalogConfig) PrimaryKeys() map[string]string {
	out := make(map[string]string)
	for _, cat := range c.Datamarts {
		if cat.HasPrimaryKey() {
			out[cat.Name] = cat.PrimaryKey
		}
	}
	return out
}
