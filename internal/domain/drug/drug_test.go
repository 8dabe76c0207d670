package drug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("1234-5678-90"))
	assert.False(t, ValidCode("1234-5678-9"))
	assert.False(t, ValidCode("12345678-90"))
	assert.False(t, ValidCode("abcd-efgh-ij"))
	assert.False(t, ValidCode(""))
	assert.False(t, ValidCode("1234-5678-901"))
}

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeGeneric, ParseType("Generic"))
	assert.Equal(t, TypeBrandName, ParseType("BrandName"))
	assert.Equal(t, TypeBrandName, ParseType("Brand Name"))
	assert.Equal(t, TypeNotSpecified, ParseType("Not Specified"))

	// Unknown input maps to the unspecified variant.
	assert.Equal(t, TypeNotSpecified, ParseType("something else"))
	assert.Equal(t, TypeNotSpecified, ParseType(""))
}

func TestTypeDisplayName(t *testing.T) {
	assert.Equal(t, "Brand Name", TypeBrandName.DisplayName())
	assert.Equal(t, "Generic", TypeGeneric.DisplayName())
	assert.Equal(t, "Not Specified", TypeNotSpecified.DisplayName())

	info := TypeBrandName.Info()
	assert.Equal(t, "BrandName", info["id"])
	assert.Equal(t, "Brand Name", info["name"])
}

func TestDrugValidate(t *testing.T) {
	valid := Drug{ID: "d1", Code: "1234-5678-90", Name: "Acetaminophen", Type: TypeGeneric}
	assert.NoError(t, valid.Validate())

	badCode := valid
	badCode.Code = "not-a-code"
	assert.Error(t, badCode.Validate())

	noName := valid
	noName.Name = "  "
	assert.Error(t, noName.Validate())

	badType := valid
	badType.Type = Type("Imaginary")
	assert.Error(t, badType.Validate())
}
