package service

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	usernameRe      = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)
	nationalIDRe    = regexp.MustCompile(`^[0-9]{6,20}$`)
	accountNumberRe = regexp.MustCompile(`^[0-9]{8,20}$`)
	payeeAccountRe  = regexp.MustCompile(`^[0-9]{6,20}$`)
	// ISO 9362：6位字母 + 2位字母数字 + 可选3位字母数字
	swiftBicRe = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
	// 金额：正十进制数，最多两位小数
	amountRe = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)
)

var errInvalidAmount = errors.New("金额格式不合法")

// maxAmountUnits 金额整数部分上限，防止换算成分后溢出 int64
const maxAmountUnits = int64(1) << 52

// ParseAmountCents 把十进制金额字符串换算成整数分
//
// 只接受正数、最多两位小数的形式（"123.45" -> 12345）；
// 超过两位小数直接拒绝而不是四舍五入，读写往返不会产生任何漂移。
// 金额在系统内只以整数分存在，绝不落浮点。
func ParseAmountCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if !amountRe.MatchString(s) {
		return 0, errInvalidAmount
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
	}

	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || units > maxAmountUnits {
		return 0, errInvalidAmount
	}

	// 不足两位小数按分补零："1.5" -> 150
	for len(fracPart) < 2 {
		fracPart += "0"
	}
	cents, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, errInvalidAmount
	}

	total := units*100 + cents
	if total <= 0 {
		return 0, errInvalidAmount
	}
	return total, nil
}

// validateAccountFields 注册/创建员工共用的字段校验
func validateAccountFields(username, fullName, nationalID, accountNumber, password string) map[string]string {
	fields := map[string]string{}

	if !usernameRe.MatchString(username) {
		fields["username"] = "用户名须为3-32位字母、数字或下划线"
	}
	if strings.TrimSpace(fullName) == "" || len(fullName) > 128 {
		fields["full_name"] = "姓名不能为空且不超过128字符"
	}
	if !nationalIDRe.MatchString(nationalID) {
		fields["national_id"] = "证件号须为6-20位数字"
	}
	if !accountNumberRe.MatchString(accountNumber) {
		fields["account_number"] = "银行账号须为8-20位数字"
	}
	if len(password) < 8 || len(password) > 72 {
		// bcrypt 输入上限 72 字节
		fields["password"] = "密码长度须为8-72字符"
	}

	return fields
}
