package core

// Column names recognised in CRM exports. Any other column is passed through
// on the flat channel and ignored on the CAPI channel.
const (
	FieldEmail           = "email"
	FieldFirstName       = "firstName"
	FieldLastName        = "lastName"
	FieldTitle           = "title"
	FieldCompanyName     = "companyName"
	FieldCountryCode     = "countryCode"
	FieldCurrencyCode    = "currencyCode"
	FieldConversionValue = "conversionValue"
	FieldConversionTime  = "conversionTime"
)

// FieldGroup is the suppression group a column belongs to.
type FieldGroup int

const (
	GroupOther FieldGroup = iota
	GroupIdentity
	GroupUserInfo
	GroupCurrency
	GroupTimestamp
)

// FieldSpec describes one known column.
type FieldSpec struct {
	Name  string
	Group FieldGroup
}

// FieldSpecs lists the known columns in the order they are documented.
var FieldSpecs = []FieldSpec{
	{Name: FieldEmail, Group: GroupIdentity},
	{Name: FieldFirstName, Group: GroupUserInfo},
	{Name: FieldLastName, Group: GroupUserInfo},
	{Name: FieldTitle, Group: GroupUserInfo},
	{Name: FieldCompanyName, Group: GroupUserInfo},
	{Name: FieldCountryCode, Group: GroupUserInfo},
	{Name: FieldCurrencyCode, Group: GroupCurrency},
	{Name: FieldConversionValue, Group: GroupCurrency},
	{Name: FieldConversionTime, Group: GroupTimestamp},
}

// UserInfoFields are emitted in this order on the nested shape.
var UserInfoFields = []string{
	FieldFirstName,
	FieldLastName,
	FieldTitle,
	FieldCompanyName,
	FieldCountryCode,
}

var fieldGroups = func() map[string]FieldGroup {
	m := make(map[string]FieldGroup, len(FieldSpecs))
	for _, spec := range FieldSpecs {
		m[spec.Name] = spec.Group
	}
	return m
}()

// GroupOf returns the group a column belongs to.
func GroupOf(column string) FieldGroup {
	return fieldGroups[column]
}
