package pcode

// Operand flags live in the opcode byte itself.
const (
	Arg8Flag  byte = 0x80 // an 8-bit operand follows the opcode
	Arg16Flag byte = 0x40 // a 16-bit big-endian operand follows
)

// Opcodes without operands (0x00-0x3f).
const (
	NOP byte = 0x00

	// Unary integer ops
	NEG byte = 0x01
	ABS byte = 0x02
	INC byte = 0x03
	DEC byte = 0x04
	NOT byte = 0x05

	// Binary integer ops
	ADD  byte = 0x06
	SUB  byte = 0x07
	MUL  byte = 0x08
	DIV  byte = 0x09
	MOD  byte = 0x0a
	SLL  byte = 0x0b
	SRL  byte = 0x0c
	SRA  byte = 0x0d
	OR   byte = 0x0e
	AND  byte = 0x0f
	XOR  byte = 0x10
	UMUL byte = 0x11
	UDIV byte = 0x12
	UMOD byte = 0x13

	// Comparisons against zero
	EQUZ byte = 0x14
	NEQZ byte = 0x15
	LTZ  byte = 0x16
	GTEZ byte = 0x17
	GTZ  byte = 0x18
	LTEZ byte = 0x19

	// Binary comparisons
	EQU  byte = 0x1a
	NEQ  byte = 0x1b
	LT   byte = 0x1c
	GTE  byte = 0x1d
	GT   byte = 0x1e
	LTE  byte = 0x1f
	ULT  byte = 0x20
	UGTE byte = 0x21
	UGT  byte = 0x22
	ULTE byte = 0x23

	// Indirect loads and stores
	LDI  byte = 0x24
	LDIB byte = 0x25
	LDIM byte = 0x26
	STI  byte = 0x27
	STIB byte = 0x28
	STIM byte = 0x29

	// Stack shuffling
	DUP  byte = 0x2a
	XCHG byte = 0x2b
	DROP byte = 0x2c

	// String stack markers
	PUSHS byte = 0x2d
	POPS  byte = 0x2e

	RET byte = 0x2f
	END byte = 0x30
)

// Opcodes with a 16-bit operand (0x40-0x7f).
const (
	JEQUZ byte = 0x40
	JNEQZ byte = 0x41
	JLTZ  byte = 0x42
	JGTEZ byte = 0x43
	JGTZ  byte = 0x44
	JLTEZ byte = 0x45
	JMP   byte = 0x46
	JEQU  byte = 0x47
	JNEQ  byte = 0x48
	JLT   byte = 0x49
	JGTE  byte = 0x4a
	JGT   byte = 0x4b
	JLTE  byte = 0x4c

	// Direct (level 0) data access, operand is an offset from the stack base
	LD  byte = 0x4d
	LDB byte = 0x4e
	LDM byte = 0x4f
	ST  byte = 0x50
	STB byte = 0x51
	STM byte = 0x52

	LDX  byte = 0x53
	LDXB byte = 0x54
	LDXM byte = 0x55
	STX  byte = 0x56
	STXB byte = 0x57
	STXM byte = 0x58

	LA  byte = 0x59
	LAX byte = 0x5a
	LAC byte = 0x5b // address of a read-only constant

	PUSH byte = 0x5c
	INDS byte = 0x5d

	LIB   byte = 0x5e
	SYSIO byte = 0x5f
	SETOP byte = 0x60
	FLOAT byte = 0x61
)

// Opcodes with an 8-bit operand (0x80-0xbf).
const (
	LONGOP byte = 0x80
	PUSHB  byte = 0x81
)

// Opcodes with both operands (0xc0-0xff). Arg1 is a static level unless noted.
const (
	LONGJMP byte = 0xc0 // Arg1 is a long-op branch sub-opcode

	LDS   byte = 0xc1
	LDSB  byte = 0xc2
	LDSM  byte = 0xc3
	STS   byte = 0xc4
	STSB  byte = 0xc5
	STSM  byte = 0xc6
	LDSX  byte = 0xc7
	LDSXB byte = 0xc8
	LDSXM byte = 0xc9
	STSX  byte = 0xca
	STSXB byte = 0xcb
	STSXM byte = 0xcc
	LAS   byte = 0xcd
	LASX  byte = 0xce

	PCAL byte = 0xcf
	LINE byte = 0xd0 // Arg1 is a file number, Arg2 a source line
)

// Long-operation sub-opcodes carried by LONGOP.
const (
	LongNEG byte = iota
	LongABS
	LongINC
	LongDEC
	LongNOT
	LongADD
	LongSUB
	LongMUL
	LongDIV
	LongMOD
	LongSLL
	LongSRL
	LongSRA
	LongOR
	LongAND
	LongXOR
	LongUMUL
	LongUDIV
	LongUMOD
	LongEQUZ
	LongNEQZ
	LongLTZ
	LongGTEZ
	LongGTZ
	LongLTEZ
	LongEQU
	LongNEQ
	LongLT
	LongGTE
	LongGT
	LongLTE
	LongULT
	LongUGTE
	LongUGT
	LongULTE
	LongDUP
	LongXCHG
	LongDROP
	LongCNV  // sign-extend a 16-bit word
	LongUCNV // zero-extend a 16-bit word
	LongDCNV // narrow to 16 bits, overflow checked
	NumLongOps
)

// Long-operation branch sub-opcodes carried by LONGJMP.
const (
	LongJEQUZ byte = iota
	LongJNEQZ
	LongJLTZ
	LongJGTEZ
	LongJGTZ
	LongJLTEZ
	LongJEQU
	LongJNEQ
	LongJLT
	LongJGTE
	LongJGT
	LongJLTE
	NumLongJumps
)

// Set sub-operations carried by SETOP.
const (
	SetINTERSECTION uint16 = iota
	SetUNION
	SetDIFFERENCE
	SetSYMDIFF
	SetEQUALITY
	SetNONEQUALITY
	SetCONTAINS
	SetMEMBER
	SetINCLUDE
	SetEXCLUDE
	SetCARD
	SetSINGLETON
	SetSUBRANGE
	NumSetOps
)

// Floating point sub-operations carried by FLOAT.
const (
	FloatFLT uint16 = iota
	FloatFLTL
	FloatADD
	FloatSUB
	FloatMUL
	FloatDIV
	FloatNEG
	FloatABS
	FloatSQR
	FloatSQRT
	FloatEQU
	FloatNEQ
	FloatLT
	FloatGTE
	FloatGT
	FloatLTE
	FloatTRUNC
	FloatROUND
	NumFloatOps
)

// Runtime library selectors carried by LIB.
const (
	LibEXIT uint16 = iota
	LibNEW
	LibDISPOSE
	LibGETENV
	LibSTRINIT
	LibBSTRINIT
	LibSTRCPY
	LibSTRCPYC
	LibSTRCAT
	LibSTRCATC
	LibSTRCMP
	LibSTRVAL
	LibSTRINSERT
	LibSTRDELETE
	LibSTRCOPY
	LibSTRPOS
	LibSTRLEN
	LibINTSTR
	LibLONGSTR
	LibMKSTKC
	LibSTRDUP
	LibLONGVAL
	LibFILLCHAR
	LibMOVE
	LibRANDOM
	LibRANDOMIZE
	LibUPCASE
	LibMEMAVAIL
	LibMAXAVAIL
	NumLibCalls
)

// System I/O selectors carried by SYSIO.
const (
	IoASSIGN uint16 = iota
	IoRESET
	IoREWRITE
	IoAPPEND
	IoCLOSE
	IoRECSIZE
	IoEOF
	IoEOLN
	IoSEEK
	IoREADLN
	IoWRITELN
	IoREADINT
	IoREADCHR
	IoREADSTR
	IoWRITEINT
	IoWRITECHR
	IoWRITESTR
	IoWRITELONG
	IoREADBIN
	IoWRITEBIN
	IoIORESULT
	IoWRITEREAL
	NumIoOps
)
